// Package chain provides typed, read-only contract access over an EVM JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

const defaultTimeout = 10 * time.Second

// ErrNoRPCURL indicates a network was configured without an endpoint.
var ErrNoRPCURL = errors.New("chain: rpc url not configured")

// Call describes one view-function invocation.
type Call struct {
	Contract common.Address
	ABI      *abi.ABI
	Method   string
	Args     []interface{}
}

// Reader is the read-only chain surface consumed by the aggregation engine.
type Reader interface {
	Call(ctx context.Context, call Call) ([]interface{}, error)
	// CallMany issues all calls as one batch; outputs keep the input order.
	CallMany(ctx context.Context, calls []Call) ([][]interface{}, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// CallError reports a failed contract read together with its target.
type CallError struct {
	Address  common.Address
	Function string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s on %s: %v", e.Function, e.Address.Hex(), e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Options parameterise the JSON-RPC reader.
type Options struct {
	RPCURL  string
	Timeout time.Duration
}

// EthReader implements Reader on top of go-ethereum's ethclient.
type EthReader struct {
	rpc     *rpc.Client
	client  *ethclient.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// Dial connects to the configured endpoint.
func Dial(ctx context.Context, opts Options, logger zerolog.Logger) (*EthReader, error) {
	if opts.RPCURL == "" {
		return nil, ErrNoRPCURL
	}
	raw, err := rpc.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewEthReader(raw, opts.Timeout, logger), nil
}

// NewEthReader wraps an existing RPC client.
func NewEthReader(raw *rpc.Client, timeout time.Duration, logger zerolog.Logger) *EthReader {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &EthReader{
		rpc:     raw,
		client:  ethclient.NewClient(raw),
		timeout: timeout,
		logger:  logger.With().Str("component", "chain_reader").Logger(),
	}
}

// Close releases the underlying connection.
func (r *EthReader) Close() error {
	r.client.Close()
	return nil
}

// Call packs, executes and unpacks a single eth_call.
func (r *EthReader) Call(ctx context.Context, call Call) ([]interface{}, error) {
	payload, err := pack(call)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	to := call.Contract
	res, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: payload}, nil)
	if err != nil {
		return nil, &CallError{Address: call.Contract, Function: call.Method, Err: err}
	}
	return unpack(call, res)
}

type callArg struct {
	To    common.Address `json:"to"`
	Input hexutil.Bytes  `json:"input"`
}

// CallMany sends every call in a single JSON-RPC batch. The first failing element is
// reported as a *CallError; a transport failure is attributed to the first call.
func (r *EthReader) CallMany(ctx context.Context, calls []Call) ([][]interface{}, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	raw := make([]hexutil.Bytes, len(calls))
	batch := make([]rpc.BatchElem, len(calls))
	for i, call := range calls {
		payload, err := pack(call)
		if err != nil {
			return nil, err
		}
		batch[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{callArg{To: call.Contract, Input: payload}, "latest"},
			Result: &raw[i],
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.rpc.BatchCallContext(ctx, batch); err != nil {
		return nil, &CallError{Address: calls[0].Contract, Function: calls[0].Method, Err: err}
	}

	out := make([][]interface{}, len(calls))
	for i, call := range calls {
		if batch[i].Error != nil {
			return nil, &CallError{Address: call.Contract, Function: call.Method, Err: batch[i].Error}
		}
		values, err := unpack(call, raw[i])
		if err != nil {
			return nil, err
		}
		out[i] = values
	}
	r.logger.Debug().Int("calls", len(calls)).Msg("batch call completed")
	return out, nil
}

// BalanceAt returns the native balance of account at the latest block.
func (r *EthReader) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	balance, err := r.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, &CallError{Address: account, Function: "eth_getBalance", Err: err}
	}
	return balance, nil
}

// BlockNumber returns the latest block height.
func (r *EthReader) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.BlockNumber(ctx)
}

// GasPrice returns the node's suggested legacy gas price in wei.
func (r *EthReader) GasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.SuggestGasPrice(ctx)
}

// ChainID returns the chain id reported by the endpoint.
func (r *EthReader) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.ChainID(ctx)
}

func pack(call Call) ([]byte, error) {
	if call.ABI == nil {
		return nil, &CallError{Address: call.Contract, Function: call.Method, Err: errors.New("abi not provided")}
	}
	payload, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, &CallError{Address: call.Contract, Function: call.Method, Err: fmt.Errorf("pack: %w", err)}
	}
	return payload, nil
}

func unpack(call Call, data []byte) ([]interface{}, error) {
	values, err := call.ABI.Unpack(call.Method, data)
	if err != nil {
		return nil, &CallError{Address: call.Contract, Function: call.Method, Err: fmt.Errorf("unpack: %w", err)}
	}
	if len(values) == 0 {
		return nil, &CallError{Address: call.Contract, Function: call.Method, Err: errors.New("empty response")}
	}
	return values, nil
}

var _ Reader = (*EthReader)(nil)
