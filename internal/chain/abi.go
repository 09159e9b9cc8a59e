package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	vaultABIJSON = `[
	{"inputs":[],"name":"totalAssets","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"asset","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"activeProvider","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

	providerABIJSON = `[
	{"inputs":[],"name":"getIdentifier","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"vault","type":"address"}],"name":"getDepositRate","outputs":[{"internalType":"uint256","name":"rate","type":"uint256"}],"stateMutability":"view","type":"function"}
]`
)

// Method names exposed by the vault and provider contracts.
const (
	MethodTotalAssets    = "totalAssets"
	MethodTotalSupply    = "totalSupply"
	MethodAsset          = "asset"
	MethodActiveProvider = "activeProvider"
	MethodGetIdentifier  = "getIdentifier"
	MethodGetDepositRate = "getDepositRate"
)

var (
	// VaultABI covers the read-only vault surface the monitor uses.
	VaultABI abi.ABI
	// ProviderABI covers the yield provider surface the monitor uses.
	ProviderABI abi.ABI
)

func init() {
	VaultABI = mustParseABI("vault", vaultABIJSON)
	ProviderABI = mustParseABI("provider", providerABIJSON)
}

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("failed to parse " + name + " ABI: " + err.Error())
	}
	return parsed
}
