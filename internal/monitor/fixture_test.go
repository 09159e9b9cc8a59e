package monitor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"vault-monitor/internal/alerting"
	"vault-monitor/internal/alertlog"
	"vault-monitor/internal/chain"
	"vault-monitor/internal/chain/chaintest"
	"vault-monitor/internal/config"
	"vault-monitor/internal/keeper"
	"vault-monitor/internal/network"
)

var (
	testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	wethVault = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	usdcVault = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	daiVault  = common.HexToAddress("0x00000000000000000000000000000000000000a3")

	wethAsset = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	usdcAsset = common.HexToAddress("0x00000000000000000000000000000000000000b2")

	aaveProvider     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	treasuryProvider = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	morphoProvider   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	brokenProvider   = common.HexToAddress("0x00000000000000000000000000000000000000c4")
)

// ray builds pct * 1e25, the on-chain encoding of pct percent.
func ray(pctTimes100 int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(pctTimes100), new(big.Int).Exp(big.NewInt(10), big.NewInt(23), nil))
}

func eth(milli int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(milli), big.NewInt(1_000_000_000_000_000))
}

func testDeployment() *config.Deployment {
	return &config.Deployment{
		Vaults: map[string]config.VaultDescriptor{
			"WETH": {Address: wethVault.Hex(), Name: "WETH Vault", Symbol: "vWETH", Status: "active", Asset: wethAsset.Hex()},
			"USDC": {Address: usdcVault.Hex(), Name: "USDC Vault", Symbol: "vUSDC", Status: "active"},
			"DAI":  {Address: daiVault.Hex(), Name: "DAI Vault", Symbol: "vDAI", Status: "active"},
		},
		BaseContracts: map[string]config.ContractDescriptor{
			"AaveV3Provider":    {Address: aaveProvider.Hex(), Status: "active"},
			"TreasuryProvider":  {Address: treasuryProvider.Hex(), Status: "active", Mode: config.ProviderModeBalance},
			"Re7MorphoProvider": {Address: morphoProvider.Hex(), Status: "active"},
			"Timelock":          {Address: common.HexToAddress("0xd1").Hex(), Status: "active"},
		},
		ChainlinkKeepers: map[string]config.KeeperDescriptor{
			"harvester":  {ID: "2222", Name: "Harvester"},
			"rebalancer": {ID: "1111", Name: "Vault Rebalancer Keeper"},
		},
	}
}

// healthyReader serves WETH and USDC fully; DAI's vault calls revert.
func healthyReader() *chaintest.Reader {
	r := chaintest.New()
	r.Block = 987654
	r.Gas = big.NewInt(10_000_000)

	r.Set(wethVault, chain.MethodTotalAssets, nil, eth(1500))
	r.Set(wethVault, chain.MethodTotalSupply, nil, eth(1400))
	r.Set(wethVault, chain.MethodAsset, nil, wethAsset)
	r.Set(wethVault, chain.MethodActiveProvider, nil, aaveProvider)

	r.Set(usdcVault, chain.MethodTotalAssets, nil, big.NewInt(2_500_000))
	r.Set(usdcVault, chain.MethodTotalSupply, nil, eth(2))
	r.Set(usdcVault, chain.MethodAsset, nil, usdcAsset)
	r.Set(usdcVault, chain.MethodActiveProvider, nil, aaveProvider)

	r.Set(aaveProvider, chain.MethodGetIdentifier, nil, "Aave_V3_Provider")
	r.Set(aaveProvider, chain.MethodGetDepositRate, []interface{}{wethVault}, ray(525))
	r.Set(aaveProvider, chain.MethodGetDepositRate, []interface{}{usdcVault}, ray(310))

	r.Set(morphoProvider, chain.MethodGetIdentifier, nil, "")
	r.Set(morphoProvider, chain.MethodGetDepositRate, []interface{}{wethVault}, ray(700))
	r.Set(morphoProvider, chain.MethodGetDepositRate, []interface{}{usdcVault}, ray(650))
	r.Set(morphoProvider, chain.MethodGetDepositRate, []interface{}{daiVault}, ray(600))

	r.SetBalance(treasuryProvider, eth(250))
	return r
}

type fakeAutomation struct {
	mu      sync.Mutex
	upkeeps map[string]keeper.Upkeep
	errs    map[string]error
}

func (f *fakeAutomation) FetchUpkeep(_ context.Context, id string) (keeper.Upkeep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return keeper.Upkeep{}, err
	}
	u, ok := f.upkeeps[id]
	if !ok {
		return keeper.Upkeep{}, errors.New("automation api error (404): not found")
	}
	return u, nil
}

func healthyAutomation() *fakeAutomation {
	lastRun := testNow.Add(-10 * time.Minute)
	degradedRun := testNow.Add(-3 * time.Hour)
	return &fakeAutomation{
		upkeeps: map[string]keeper.Upkeep{
			"1111": {Status: "active", LastRun: &lastRun, Balance: "4.2", TotalSpent: "0.05", ExecutionCount: 50, SuccessCount: 50},
			"2222": {Status: "active", LastRun: &degradedRun, Balance: "0.05", TotalSpent: "0.02", ExecutionCount: 10, SuccessCount: 8, FailureCount: 2},
		},
		errs: map[string]error{},
	}
}

type recordingSink struct {
	mu      sync.Mutex
	entries []alertlog.Entry
}

func (s *recordingSink) Publish(_ context.Context, e alertlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) types() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for _, e := range s.entries {
		out[e.Type]++
	}
	return out
}

type testEnv struct {
	engine *Engine
	nc     *network.Context
	reader *chaintest.Reader
	auto   *fakeAutomation
	sink   *recordingSink
	store  *alertlog.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := alertlog.Open(t.TempDir(), zerolog.Nop(), alertlog.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("open alert log: %v", err)
	}

	env := &testEnv{
		reader: healthyReader(),
		auto:   healthyAutomation(),
		sink:   &recordingSink{},
		store:  store,
	}
	env.nc = &network.Context{Name: "arbitrumone", ChainID: 42161, Reader: env.reader, Deployment: testDeployment()}
	env.engine = New(Options{
		Sink:        alerting.Multi(env.sink, store),
		Alerts:      store,
		Automation:  env.auto,
		Concurrency: 4,
		Clock:       func() time.Time { return testNow },
	}, zerolog.Nop())
	return env
}
