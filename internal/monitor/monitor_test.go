package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"vault-monitor/internal/chain"
	"vault-monitor/internal/convert"
	"vault-monitor/internal/keeper"
	"vault-monitor/internal/network"
)

func TestVaultsIsolateFailingEntity(t *testing.T) {
	env := newTestEnv(t)

	vaults, err := env.engine.Vaults(context.Background(), env.nc)
	if err != nil {
		t.Fatalf("Vaults: %v", err)
	}
	if len(vaults) != 3 {
		t.Fatalf("got %d records, want 3", len(vaults))
	}

	byToken := make(map[string]VaultRecord)
	errorsSeen := 0
	for _, v := range vaults {
		byToken[v.Token] = v
		if v.Status == StatusError {
			errorsSeen++
		}
	}
	if errorsSeen != 1 || byToken["DAI"].Status != StatusError || byToken["DAI"].Error == "" {
		t.Fatalf("expected only DAI to fail, got %+v", vaults)
	}

	weth := byToken["WETH"]
	if weth.TVL != "1.5" || weth.TotalShares != "1.4" || weth.Asset != wethAsset.Hex() {
		t.Fatalf("unexpected WETH record %+v", weth)
	}
	if weth.ProviderInfo == nil || weth.ProviderInfo.Name != "Aave_V3_Provider" || weth.ProviderInfo.APY != "5.2500" {
		t.Fatalf("unexpected WETH provider info %+v", weth.ProviderInfo)
	}
	if usdc := byToken["USDC"]; usdc.TVL != "2.5" {
		t.Fatalf("USDC tvl = %s, want 2.5 with 6 decimals", usdc.TVL)
	}
}

func TestVaultsOrderFollowsSortedKeys(t *testing.T) {
	env := newTestEnv(t)
	vaults, _ := env.engine.Vaults(context.Background(), env.nc)

	got := make([]string, 0, len(vaults))
	for _, v := range vaults {
		got = append(got, v.Token)
	}
	if strings.Join(got, ",") != "DAI,USDC,WETH" {
		t.Fatalf("order = %v", got)
	}
}

func TestVaultNestedProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.reader.Set(usdcVault, chain.MethodActiveProvider, nil, brokenProvider)

	vaults, _ := env.engine.Vaults(context.Background(), env.nc)
	var usdc VaultRecord
	for _, v := range vaults {
		if v.Token == "USDC" {
			usdc = v
		}
	}

	if usdc.Status != "active" || usdc.Error != "" {
		t.Fatalf("nested failure degraded the vault: %+v", usdc)
	}
	info := usdc.ProviderInfo
	if info == nil || info.Name != "unknown" || info.APY != convert.ZeroPercent || info.Error == "" {
		t.Fatalf("unexpected provider info %+v", info)
	}
	if info.Address != brokenProvider.Hex() {
		t.Fatalf("provider address = %s", info.Address)
	}
}

func TestProvidersModesAndDegradation(t *testing.T) {
	env := newTestEnv(t)

	providers, err := env.engine.Providers(context.Background(), env.nc)
	if err != nil {
		t.Fatalf("Providers: %v", err)
	}
	if len(providers) != 3 {
		t.Fatalf("got %d providers, want 3 (non-provider contracts excluded)", len(providers))
	}

	byKey := make(map[string]ProviderRecord)
	for _, p := range providers {
		byKey[p.Key] = p
	}

	aave := byKey["AaveV3Provider"]
	if aave.Status != "active" || aave.Name != "Aave_V3_Provider" {
		t.Fatalf("unexpected aave record %+v", aave)
	}
	if aave.Rates["WETH"] != "5.2500" || aave.Rates["USDC"] != "3.1000" {
		t.Fatalf("aave rates = %v", aave.Rates)
	}
	if aave.Rates["DAI"] != convert.ZeroPercent || aave.RateErrors["DAI"] == "" {
		t.Fatalf("failing rate not degraded: %v / %v", aave.Rates, aave.RateErrors)
	}

	morpho := byKey["Re7MorphoProvider"]
	if morpho.Name != "RE7 Morpho" {
		t.Fatalf("empty identifier should fall back to formatted key, got %q", morpho.Name)
	}
	if len(morpho.RateErrors) != 0 || morpho.Rates["DAI"] != "6.0000" {
		t.Fatalf("morpho rates = %v / %v", morpho.Rates, morpho.RateErrors)
	}

	treasury := byKey["TreasuryProvider"]
	if treasury.Mode != "balance" || treasury.Balance != "0.25" || treasury.Rates != nil {
		t.Fatalf("unexpected treasury record %+v", treasury)
	}
}

func TestProviderFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t)
	env.reader.FailBalance(treasuryProvider, errors.New("rpc timeout"))

	providers, _ := env.engine.Providers(context.Background(), env.nc)
	failed := 0
	for _, p := range providers {
		if p.Status == StatusError {
			failed++
			if p.Key != "TreasuryProvider" || p.Error == "" {
				t.Fatalf("unexpected failure %+v", p)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
}

func TestAPYSources(t *testing.T) {
	env := newTestEnv(t)

	apy, err := env.engine.APY(context.Background(), env.nc)
	if err != nil {
		t.Fatalf("APY: %v", err)
	}
	for _, rec := range apy {
		switch rec.Token {
		case "DAI":
			if rec.Source != SourceError || rec.APY != "0.0000" || rec.Provider != "unknown" || rec.ProviderAddress != "unknown" {
				t.Fatalf("unexpected DAI apy %+v", rec)
			}
		case "WETH":
			if rec.Source != SourceBlockchain || rec.APY != "5.2500" || rec.ProviderAddress != aaveProvider.Hex() {
				t.Fatalf("unexpected WETH apy %+v", rec)
			}
			if rec.AssetAddress != wethAsset.Hex() {
				t.Fatalf("asset address = %q", rec.AssetAddress)
			}
		case "USDC":
			if rec.Source != SourceBlockchain || rec.APY != "3.1000" {
				t.Fatalf("unexpected USDC apy %+v", rec)
			}
		}
	}
}

func TestKeepersPublishAlerts(t *testing.T) {
	env := newTestEnv(t)

	keepers, err := env.engine.Keepers(context.Background(), env.nc)
	if err != nil {
		t.Fatalf("Keepers: %v", err)
	}
	if len(keepers) != 2 {
		t.Fatalf("got %d keepers", len(keepers))
	}

	harvester := keepers[0]
	if harvester.Key != "harvester" || harvester.Metrics == nil {
		t.Fatalf("unexpected first keeper %+v", harvester)
	}
	if harvester.SuccessRate != "80.00" || harvester.UptimeMinutes != 180 || len(harvester.Alerts) != 3 {
		t.Fatalf("unexpected harvester health %+v alerts=%v", harvester.Metrics, harvester.Alerts)
	}
	if rebalancer := keepers[1]; len(rebalancer.Alerts) != 0 || rebalancer.Status != "active" {
		t.Fatalf("healthy keeper raised %v", rebalancer.Alerts)
	}

	got := env.sink.types()
	for _, typ := range []keeper.AlertType{keeper.AlertLowBalance, keeper.AlertMissedExecution, keeper.AlertLowSuccessRate} {
		if got[string(typ)] != 1 {
			t.Errorf("%s published %d times, want 1", typ, got[string(typ)])
		}
	}
	if stats := env.store.Stats(0); stats.Total != 3 || stats.High != 1 || stats.Medium != 2 {
		t.Fatalf("alert log stats = %+v", stats)
	}
}

func TestKeeperFetchErrorRaisesKeeperError(t *testing.T) {
	env := newTestEnv(t)
	env.auto.errs["1111"] = errors.New("automation api key not configured")

	keepers, _ := env.engine.Keepers(context.Background(), env.nc)
	var rebalancer KeeperRecord
	for _, k := range keepers {
		if k.Key == "rebalancer" {
			rebalancer = k
		}
	}

	if rebalancer.Status != StatusError || rebalancer.Metrics != nil {
		t.Fatalf("unexpected record %+v", rebalancer)
	}
	if len(rebalancer.Alerts) != 1 || rebalancer.Alerts[0].Type != keeper.AlertKeeperError || rebalancer.Alerts[0].Severity != "high" {
		t.Fatalf("inline alerts = %+v", rebalancer.Alerts)
	}
	if !strings.HasPrefix(rebalancer.Alerts[0].Message, "Failed to fetch data: ") {
		t.Fatalf("message = %q", rebalancer.Alerts[0].Message)
	}

	if env.sink.types()["KEEPER_ERROR"] != 1 {
		t.Fatalf("KEEPER_ERROR not published: %v", env.sink.types())
	}
	recent := env.store.Recent(0)
	found := false
	for _, e := range recent {
		if e.Type == "KEEPER_ERROR" {
			found = true
			if e.Data["keeperId"] != "1111" || e.Severity != "medium" {
				t.Fatalf("unexpected logged entry %+v", e)
			}
		}
	}
	if !found {
		t.Fatal("KEEPER_ERROR missing from alert log")
	}
}

func TestKeepersWithoutAutomation(t *testing.T) {
	env := newTestEnv(t)
	engine := New(Options{Alerts: env.store}, zerolog.Nop())
	if _, err := engine.Keepers(context.Background(), env.nc); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNetworkInfo(t *testing.T) {
	env := newTestEnv(t)

	info := env.engine.NetworkInfo(context.Background(), env.nc)
	if info.Error != "" || info.ChainID != 42161 || info.BlockNumber != 987654 || info.GasPrice != "0.01" {
		t.Fatalf("unexpected info %+v", info)
	}

	env.reader.NetworkErr = errors.New("rpc down")
	info = env.engine.NetworkInfo(context.Background(), env.nc)
	if info.Error == "" || info.Network != "arbitrumone" {
		t.Fatalf("expected error info, got %+v", info)
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)

	dash, err := env.engine.Dashboard(context.Background(), env.nc)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(dash.Vaults) != 3 || len(dash.Providers) != 3 || len(dash.APY) != 3 || len(dash.Keepers) != 2 {
		t.Fatalf("unexpected view sizes: %d/%d/%d/%d", len(dash.Vaults), len(dash.Providers), len(dash.APY), len(dash.Keepers))
	}
	if dash.Errors != nil {
		t.Fatalf("unexpected view errors %v", dash.Errors)
	}
	if dash.Alerts.Total != 3 || len(dash.Alerts.Recent) != 3 {
		t.Fatalf("alert summary should include this pass's alerts, got %+v", dash.Alerts)
	}
	if !dash.LastUpdate.Equal(testNow) || dash.NetworkInfo.BlockNumber != 987654 {
		t.Fatalf("unexpected dashboard metadata %+v", dash.NetworkInfo)
	}

	raw, err := json.Marshal(dash)
	if err != nil {
		t.Fatalf("marshal dashboard: %v", err)
	}
	for _, field := range []string{`"successRate":"80.00"`, `"costEfficiency":"0.002500"`, `"byType"`, `"source":"blockchain"`} {
		if !strings.Contains(string(raw), field) {
			t.Errorf("dashboard json missing %s", field)
		}
	}
}

func TestDashboardRecoversPanickingView(t *testing.T) {
	env := newTestEnv(t)
	env.engine.automation = panickingAutomation{}

	dash, err := env.engine.Dashboard(context.Background(), env.nc)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(dash.Vaults) != 3 {
		t.Fatal("other views lost after a panic")
	}
	if len(dash.Keepers) != 2 {
		t.Fatalf("panicking keepers should become error records, got %d", len(dash.Keepers))
	}
	for _, k := range dash.Keepers {
		if k.Status != StatusError || !strings.Contains(k.Error, "panic") {
			t.Fatalf("unexpected keeper record %+v", k)
		}
	}
}

type panickingAutomation struct{}

func (panickingAutomation) FetchUpkeep(context.Context, string) (keeper.Upkeep, error) {
	panic("boom")
}

func TestDashboardRequiresNetwork(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Dashboard(context.Background(), nil); !errors.Is(err, ErrNoNetwork) {
		t.Fatalf("expected ErrNoNetwork, got %v", err)
	}
	if _, err := env.engine.Vaults(context.Background(), &network.Context{Name: "x"}); !errors.Is(err, ErrNoNetwork) {
		t.Fatalf("expected ErrNoNetwork, got %v", err)
	}
}

func TestAlertSummaryLimitsRecent(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 15; i++ {
		env.store.Append("high_cost", nil, "low")
	}
	summary := env.engine.AlertSummary()
	if summary.Total != 15 || len(summary.Recent) != 10 || summary.Low != 15 {
		t.Fatalf("unexpected summary total=%d recent=%d low=%d", summary.Total, len(summary.Recent), summary.Low)
	}
}

func TestSimulateKeeper(t *testing.T) {
	env := newTestEnv(t)
	rec := env.engine.SimulateKeeper(context.Background(), "sim", keeper.Upkeep{Status: keeper.StatusPaused, Balance: "5", TotalSpent: "0"})
	if len(rec.Alerts) != 1 || rec.Alerts[0].Type != keeper.AlertPaused {
		t.Fatalf("alerts = %+v", rec.Alerts)
	}
	if env.sink.types()["paused"] != 1 {
		t.Fatal("simulated alert not published")
	}
}

func TestVaultStatusFollowsDescriptor(t *testing.T) {
	env := newTestEnv(t)
	weth := env.nc.Deployment.Vaults["WETH"]
	weth.Status = "deprecated"
	env.nc.Deployment.Vaults["WETH"] = weth
	usdc := env.nc.Deployment.Vaults["USDC"]
	usdc.Status = ""
	env.nc.Deployment.Vaults["USDC"] = usdc

	vaults, err := env.engine.Vaults(context.Background(), env.nc)
	if err != nil {
		t.Fatalf("Vaults: %v", err)
	}
	byToken := make(map[string]VaultRecord)
	for _, v := range vaults {
		byToken[v.Token] = v
	}
	if got := byToken["WETH"].Status; got != "deprecated" {
		t.Fatalf("WETH status = %q, want descriptor status", got)
	}
	if got := byToken["USDC"].Status; got != StatusActive {
		t.Fatalf("USDC status = %q, want active for an empty descriptor status", got)
	}
}
