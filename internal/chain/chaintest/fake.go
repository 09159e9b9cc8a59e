// Package chaintest provides an in-memory chain.Reader for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"vault-monitor/internal/chain"
)

// ErrReverted is returned for calls without a canned response.
var ErrReverted = errors.New("execution reverted")

type response struct {
	values []interface{}
	err    error
}

// Reader answers calls from canned responses keyed by contract, method and arguments.
type Reader struct {
	mu        sync.Mutex
	responses map[string]response
	balances  map[common.Address]*big.Int
	balErrs   map[common.Address]error

	ChainIDValue *big.Int
	Block        uint64
	Gas          *big.Int
	NetworkErr   error
	Closed       bool
	calls        int
}

// New returns an empty fake on chain id 42161.
func New() *Reader {
	return &Reader{
		responses:    make(map[string]response),
		balances:     make(map[common.Address]*big.Int),
		balErrs:      make(map[common.Address]error),
		ChainIDValue: big.NewInt(42161),
		Block:        1,
		Gas:          big.NewInt(100_000_000),
	}
}

func key(contract common.Address, method string, args []interface{}) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if addr, ok := a.(common.Address); ok {
			parts = append(parts, addr.Hex())
			continue
		}
		parts = append(parts, fmt.Sprint(a))
	}
	return contract.Hex() + "." + method + "(" + strings.Join(parts, ",") + ")"
}

// Set registers the outputs of method on contract for args.
func (r *Reader) Set(contract common.Address, method string, args []interface{}, values ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[key(contract, method, args)] = response{values: values}
}

// Fail makes method on contract return err for args.
func (r *Reader) Fail(contract common.Address, method string, args []interface{}, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[key(contract, method, args)] = response{err: err}
}

// SetBalance sets the native balance of account.
func (r *Reader) SetBalance(account common.Address, wei *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[account] = wei
}

// FailBalance makes BalanceAt fail for account.
func (r *Reader) FailBalance(account common.Address, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balErrs[account] = err
}

// Calls reports how many contract calls were served.
func (r *Reader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *Reader) Call(ctx context.Context, call chain.Call) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	resp, ok := r.responses[key(call.Contract, call.Method, call.Args)]
	if !ok {
		return nil, &chain.CallError{Address: call.Contract, Function: call.Method, Err: ErrReverted}
	}
	if resp.err != nil {
		return nil, &chain.CallError{Address: call.Contract, Function: call.Method, Err: resp.err}
	}
	return resp.values, nil
}

func (r *Reader) CallMany(ctx context.Context, calls []chain.Call) ([][]interface{}, error) {
	out := make([][]interface{}, len(calls))
	for i, c := range calls {
		values, err := r.Call(ctx, c)
		if err != nil {
			return nil, err
		}
		out[i] = values
	}
	return out, nil
}

func (r *Reader) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.balErrs[account]; err != nil {
		return nil, &chain.CallError{Address: account, Function: "eth_getBalance", Err: err}
	}
	if bal, ok := r.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (r *Reader) BlockNumber(ctx context.Context) (uint64, error) {
	if r.NetworkErr != nil {
		return 0, r.NetworkErr
	}
	return r.Block, nil
}

func (r *Reader) GasPrice(ctx context.Context) (*big.Int, error) {
	if r.NetworkErr != nil {
		return nil, r.NetworkErr
	}
	return new(big.Int).Set(r.Gas), nil
}

func (r *Reader) ChainID(ctx context.Context) (*big.Int, error) {
	if r.NetworkErr != nil {
		return nil, r.NetworkErr
	}
	return new(big.Int).Set(r.ChainIDValue), nil
}

// Close marks the reader closed.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return nil
}

var _ chain.Reader = (*Reader)(nil)
