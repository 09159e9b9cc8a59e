package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vault-monitor/internal/alertlog"
	"vault-monitor/internal/chain"
	"vault-monitor/internal/chain/chaintest"
	"vault-monitor/internal/config"
	"vault-monitor/internal/monitor"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()

	deployment := filepath.Join(dir, "deployed-vaults.json")
	if err := os.WriteFile(deployment, []byte(`{"vaults":{},"baseContracts":{},"chainlinkKeepers":{}}`), 0o644); err != nil {
		t.Fatalf("write deployment: %v", err)
	}

	cfg := &config.Config{
		Network: "arbitrumone",
		Networks: map[string]config.NetworkConfig{
			"arbitrumone": {RPCURL: "http://arb", ChainID: 42161, DeploymentFile: deployment},
		},
		Scheduler: config.SchedulerConfig{Interval: time.Minute},
		Monitor:   config.MonitorConfig{Concurrency: 2, RecentAlerts: 10},
		AlertLog:  config.AlertLogConfig{Dir: filepath.Join(dir, "logs"), Retention: 168 * time.Hour, Window: 24 * time.Hour},
		Export:    config.ExportConfig{Bucket: time.Hour, OutputDir: dir},
	}

	out := &bytes.Buffer{}
	a := NewApp(nil, cfg, zerolog.Nop())
	a.Out = out
	a.dial = func(context.Context, string, config.NetworkConfig) (chain.Reader, error) {
		r := chaintest.New()
		r.Block = 777
		return r, nil
	}
	return a, out
}

func TestSnapshotNetworkView(t *testing.T) {
	a, out := newTestApp(t)

	if err := a.Snapshot(context.Background(), SnapshotOptions{View: "network"}); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var info monitor.NetworkInfo
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if info.Network != "arbitrumone" || info.ChainID != 42161 || info.BlockNumber != 777 {
		t.Fatalf("unexpected network info %+v", info)
	}
}

func TestSnapshotDashboardAndUnknownView(t *testing.T) {
	a, out := newTestApp(t)

	if err := a.Snapshot(context.Background(), SnapshotOptions{}); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var dash monitor.Dashboard
	if err := json.Unmarshal(out.Bytes(), &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dash.Network != "arbitrumone" || dash.Vaults == nil {
		t.Fatalf("unexpected dashboard %+v", dash)
	}

	if err := a.Snapshot(context.Background(), SnapshotOptions{View: "balances"}); err == nil {
		t.Fatal("unknown view should fail")
	}
}

func TestSimulateKeeperPublishesAlerts(t *testing.T) {
	a, out := newTestApp(t)

	err := a.SimulateKeeper(context.Background(), SimulateOptions{
		Key:            "rebalancer",
		Status:         "paused",
		Balance:        "0.05",
		TotalSpent:     "0",
		ExecutionCount: 10,
		SuccessCount:   10,
		LastRunAgo:     10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("SimulateKeeper: %v", err)
	}

	var record monitor.KeeperRecord
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if len(record.Alerts) != 2 {
		t.Fatalf("alerts = %+v, want low_balance and paused", record.Alerts)
	}

	store, err := alertlog.Open(a.Config.AlertLog.Dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("open alert log: %v", err)
	}
	stats := store.Stats(time.Hour)
	if stats.Total != 2 || stats.ByType["paused"] != 1 || stats.ByType["low_balance"] != 1 {
		t.Fatalf("alert log stats = %+v", stats)
	}
}

func TestAlertsTable(t *testing.T) {
	a, out := newTestApp(t)

	store, err := a.openAlertLog()
	if err != nil {
		t.Fatalf("open alert log: %v", err)
	}
	store.Append("low_balance", map[string]interface{}{"keeper": "rebalancer", "message": "Low balance: 0.05 ETH"}, alertlog.SeverityHigh)
	store.Append("high_cost", map[string]interface{}{"keeper": "harvester"}, alertlog.SeverityLow)

	if err := a.Alerts(context.Background(), AlertsOptions{Limit: 1}); err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "total: 2") || !strings.Contains(text, "low_balance: 1") {
		t.Fatalf("missing stats in %q", text)
	}
	if strings.Count(text, "harvester")+strings.Count(text, "rebalancer") != 1 {
		t.Fatalf("limit not applied:\n%s", text)
	}
}

func TestAlertsFromDatabaseRequiresDSN(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.Alerts(context.Background(), AlertsOptions{FromDatabase: true}); err == nil {
		t.Fatal("expected error without database")
	}
}

func TestExportCSV(t *testing.T) {
	a, _ := newTestApp(t)

	store, err := a.openAlertLog()
	if err != nil {
		t.Fatalf("open alert log: %v", err)
	}
	store.Append("paused", nil, alertlog.SeverityHigh)
	store.Append("high_cost", nil, alertlog.SeverityLow)

	if err := a.Export(context.Background(), ExportOptions{Window: 6 * time.Hour, CSVPath: "alerts.csv"}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(a.Config.Export.OutputDir, "alerts.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "bucket_ts,total,high,medium,low" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[len(lines)-1], ",2,1,0,1") {
		t.Fatalf("last bucket = %q, want both alerts", lines[len(lines)-1])
	}
}

func TestExportRequiresOutput(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("expected error without --csv or --png")
	}
	if err := a.Export(context.Background(), ExportOptions{Window: time.Hour, CSVPath: "x.csv"}); err == nil {
		t.Fatal("expected error for a single-bucket window")
	}
}

func TestBucketAlerts(t *testing.T) {
	from := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	to := from.Add(3 * time.Hour)
	entries := []alertlog.Entry{
		{Timestamp: from.Add(-time.Minute), Severity: alertlog.SeverityHigh},
		{Timestamp: from.Add(10 * time.Minute), Severity: alertlog.SeverityHigh},
		{Timestamp: from.Add(2 * time.Hour), Severity: alertlog.SeverityMedium},
		{Timestamp: to, Severity: alertlog.SeverityLow},
	}

	buckets := bucketAlerts(entries, from, to, time.Hour)
	if len(buckets) != 4 {
		t.Fatalf("got %d buckets, want 4", len(buckets))
	}
	if !buckets[0].Start.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("first bucket starts %v", buckets[0].Start)
	}
	if buckets[0].High != 1 || buckets[2].Medium != 1 {
		t.Fatalf("unexpected buckets %+v", buckets)
	}
	total := 0
	for _, b := range buckets {
		total += b.Total
	}
	if total != 2 {
		t.Fatalf("counted %d alerts, want 2 inside the window", total)
	}
}

func TestPruneZeroRetention(t *testing.T) {
	a, _ := newTestApp(t)

	store, err := a.openAlertLog()
	if err != nil {
		t.Fatalf("open alert log: %v", err)
	}
	store.Append("paused", nil, alertlog.SeverityHigh)

	if err := a.Prune(context.Background(), 0); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if got := store.Recent(time.Hour); len(got) != 0 {
		t.Fatalf("prune(0) left %d alerts", len(got))
	}
}
