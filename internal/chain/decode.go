package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Uint reads the first output of an unpacked call as an integer.
func Uint(values []interface{}) (*big.Int, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("decode uint: no outputs")
	}
	v, ok := values[0].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("decode uint: unexpected %T", values[0])
	}
	return v, nil
}

// Address reads the first output of an unpacked call as an address.
func Address(values []interface{}) (common.Address, error) {
	if len(values) == 0 {
		return common.Address{}, fmt.Errorf("decode address: no outputs")
	}
	v, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode address: unexpected %T", values[0])
	}
	return v, nil
}

// String reads the first output of an unpacked call as a string.
func String(values []interface{}) (string, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("decode string: no outputs")
	}
	v, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("decode string: unexpected %T", values[0])
	}
	return v, nil
}
