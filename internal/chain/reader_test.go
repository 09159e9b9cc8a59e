package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

// fakeEth answers eth_* requests from canned ABI-encoded outputs.
type fakeEth struct {
	mu       sync.Mutex
	outputs  map[string][]byte
	balances map[common.Address]*big.Int
}

func newFakeEth() *fakeEth {
	return &fakeEth{outputs: make(map[string][]byte), balances: make(map[common.Address]*big.Int)}
}

func callKey(to string, selector []byte) string {
	return strings.ToLower(to) + ":" + hex.EncodeToString(selector)
}

func (f *fakeEth) set(t *testing.T, to common.Address, contract abi.ABI, method string, values ...interface{}) {
	t.Helper()
	m, ok := contract.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack outputs for %s: %v", method, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[callKey(to.Hex(), m.ID)] = out
}

func (f *fakeEth) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	to, _ := args["to"].(string)
	input, _ := args["input"].(string)
	if input == "" {
		input, _ = args["data"].(string)
	}
	data, err := hexutil.Decode(input)
	if err != nil || len(data) < 4 {
		return nil, fmt.Errorf("bad input %q", input)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.outputs[callKey(to, data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (f *fakeEth) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(42161))
}

func (f *fakeEth) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(1234)
}

func (f *fakeEth) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(10_000_000))
}

func (f *fakeEth) GetBalance(account common.Address, block string) (*hexutil.Big, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[account]
	if !ok {
		return (*hexutil.Big)(big.NewInt(0)), nil
	}
	return (*hexutil.Big)(bal), nil
}

func newTestReader(t *testing.T, svc *fakeEth) *EthReader {
	t.Helper()
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", svc); err != nil {
		t.Fatalf("register fake eth service: %v", err)
	}
	t.Cleanup(srv.Stop)

	reader := NewEthReader(rpc.DialInProc(srv), time.Second, zerolog.Nop())
	t.Cleanup(func() { _ = reader.Close() })
	return reader
}

var (
	vaultAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	assetAddr    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	providerAddr = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func TestCallManyPreservesOrder(t *testing.T) {
	svc := newFakeEth()
	svc.set(t, vaultAddr, VaultABI, MethodTotalAssets, big.NewInt(5_000_000))
	svc.set(t, vaultAddr, VaultABI, MethodTotalSupply, big.NewInt(4_000_000))
	svc.set(t, vaultAddr, VaultABI, MethodAsset, assetAddr)
	svc.set(t, vaultAddr, VaultABI, MethodActiveProvider, providerAddr)

	reader := newTestReader(t, svc)
	calls := []Call{
		{Contract: vaultAddr, ABI: &VaultABI, Method: MethodActiveProvider},
		{Contract: vaultAddr, ABI: &VaultABI, Method: MethodTotalAssets},
		{Contract: vaultAddr, ABI: &VaultABI, Method: MethodAsset},
		{Contract: vaultAddr, ABI: &VaultABI, Method: MethodTotalSupply},
	}

	out, err := reader.CallMany(context.Background(), calls)
	if err != nil {
		t.Fatalf("CallMany: %v", err)
	}
	if len(out) != len(calls) {
		t.Fatalf("got %d results, want %d", len(out), len(calls))
	}

	active, err := Address(out[0])
	if err != nil || active != providerAddr {
		t.Fatalf("activeProvider = %v (%v), want %s", active, err, providerAddr.Hex())
	}
	assets, err := Uint(out[1])
	if err != nil || assets.Int64() != 5_000_000 {
		t.Fatalf("totalAssets = %v (%v)", assets, err)
	}
	asset, err := Address(out[2])
	if err != nil || asset != assetAddr {
		t.Fatalf("asset = %v (%v)", asset, err)
	}
	supply, err := Uint(out[3])
	if err != nil || supply.Int64() != 4_000_000 {
		t.Fatalf("totalSupply = %v (%v)", supply, err)
	}
}

func TestCallManyReportsFailingCall(t *testing.T) {
	svc := newFakeEth()
	svc.set(t, vaultAddr, VaultABI, MethodTotalAssets, big.NewInt(1))

	reader := newTestReader(t, svc)
	_, err := reader.CallMany(context.Background(), []Call{
		{Contract: vaultAddr, ABI: &VaultABI, Method: MethodTotalAssets},
		{Contract: vaultAddr, ABI: &VaultABI, Method: MethodActiveProvider},
	})

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected *CallError, got %v", err)
	}
	if callErr.Function != MethodActiveProvider || callErr.Address != vaultAddr {
		t.Fatalf("error attributed to %s on %s", callErr.Function, callErr.Address.Hex())
	}
}

func TestCallWithArguments(t *testing.T) {
	svc := newFakeEth()
	rate, _ := new(big.Int).SetString("52500000000000000000000000", 10)
	svc.set(t, providerAddr, ProviderABI, MethodGetDepositRate, rate)
	svc.set(t, providerAddr, ProviderABI, MethodGetIdentifier, "Aave_V3_Provider")

	reader := newTestReader(t, svc)
	out, err := reader.Call(context.Background(), Call{
		Contract: providerAddr,
		ABI:      &ProviderABI,
		Method:   MethodGetDepositRate,
		Args:     []interface{}{vaultAddr},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	got, err := Uint(out)
	if err != nil || got.Cmp(rate) != 0 {
		t.Fatalf("deposit rate = %v (%v), want %s", got, err, rate)
	}

	out, err = reader.Call(context.Background(), Call{Contract: providerAddr, ABI: &ProviderABI, Method: MethodGetIdentifier})
	if err != nil {
		t.Fatalf("Call identifier: %v", err)
	}
	if id, _ := String(out); id != "Aave_V3_Provider" {
		t.Fatalf("identifier = %q", id)
	}
}

func TestCallRejectsBadArguments(t *testing.T) {
	reader := newTestReader(t, newFakeEth())
	_, err := reader.Call(context.Background(), Call{Contract: providerAddr, ABI: &ProviderABI, Method: MethodGetDepositRate})

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("missing argument should yield *CallError, got %v", err)
	}
}

func TestNetworkReads(t *testing.T) {
	svc := newFakeEth()
	svc.balances[providerAddr] = big.NewInt(7)
	reader := newTestReader(t, svc)
	ctx := context.Background()

	id, err := reader.ChainID(ctx)
	if err != nil || id.Int64() != 42161 {
		t.Fatalf("ChainID = %v (%v)", id, err)
	}
	block, err := reader.BlockNumber(ctx)
	if err != nil || block != 1234 {
		t.Fatalf("BlockNumber = %d (%v)", block, err)
	}
	price, err := reader.GasPrice(ctx)
	if err != nil || price.Int64() != 10_000_000 {
		t.Fatalf("GasPrice = %v (%v)", price, err)
	}
	bal, err := reader.BalanceAt(ctx, providerAddr)
	if err != nil || bal.Int64() != 7 {
		t.Fatalf("BalanceAt = %v (%v)", bal, err)
	}
}

func TestDialRequiresURL(t *testing.T) {
	if _, err := Dial(context.Background(), Options{}, zerolog.Nop()); !errors.Is(err, ErrNoRPCURL) {
		t.Fatalf("expected ErrNoRPCURL, got %v", err)
	}
}
