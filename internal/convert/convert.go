// Package convert turns raw on-chain fixed-point integers into display decimals.
package convert

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ZeroPercent is substituted whenever a rate cannot be converted.
const ZeroPercent = "0.0000"

// DefaultDecimals applies to tokens missing from the decimals table.
const DefaultDecimals int32 = 18

// rayToPercentExp scales a 1e27 ray down to a percentage (1e27 / 100 = 1e25).
const rayToPercentExp int32 = -25

var (
	// ErrNilAmount is returned when a contract call produced no integer.
	ErrNilAmount = errors.New("convert: nil amount")
	// ErrNegativeRate is returned for rates below zero, which a uint256 read cannot yield.
	ErrNegativeRate = errors.New("convert: negative rate")
)

var tokenDecimals = map[string]int32{
	"WETH":   18,
	"USDC":   6,
	"USDT":   6,
	"DAI":    18,
	"FRAX":   18,
	"USDC_e": 6,
}

// ToPercentFromRay converts a ray-scaled deposit rate into a percentage with four fractional digits.
func ToPercentFromRay(raw *big.Int) (string, error) {
	if raw == nil {
		return "", ErrNilAmount
	}
	if raw.Sign() < 0 {
		return "", ErrNegativeRate
	}
	return decimal.NewFromBigInt(raw, rayToPercentExp).StringFixed(4), nil
}

// PercentFromRayOrZero is ToPercentFromRay with the ZeroPercent fallback applied.
func PercentFromRayOrZero(raw *big.Int) string {
	pct, err := ToPercentFromRay(raw)
	if err != nil {
		return ZeroPercent
	}
	return pct
}

// FormatTokenAmount renders an integer token amount using the token's decimal precision.
// Trailing zeros are trimmed but at least one fractional digit is kept ("1000.0").
func FormatTokenAmount(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0.0"
	}
	out := decimal.NewFromBigInt(raw, -decimals).String()
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

// FormatEther renders a wei amount in native token units.
func FormatEther(wei *big.Int) string {
	return FormatTokenAmount(wei, 18)
}

// FormatGwei renders a wei amount in gwei.
func FormatGwei(wei *big.Int) string {
	return FormatTokenAmount(wei, 9)
}

// TokenDecimals looks up the decimal precision for a vault token symbol.
func TokenDecimals(symbol string) int32 {
	if d, ok := tokenDecimals[symbol]; ok {
		return d
	}
	return DefaultDecimals
}
