package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vault-monitor/internal/alertlog"
	"vault-monitor/internal/config"
)

func TestStoreWithoutPool(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())
	ctx := context.Background()

	if err := s.EnsureSchema(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("EnsureSchema = %v", err)
	}
	if err := s.Publish(ctx, alertlog.Entry{ID: "x", Type: "paused"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Publish = %v", err)
	}
	if _, _, err := s.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TryAdvisoryLock = %v", err)
	}
	if _, err := s.DeleteAlertsBefore(ctx, time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("DeleteAlertsBefore = %v", err)
	}
	s.Close()
}

func TestRecordFromEntry(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	rec, err := RecordFromEntry(alertlog.Entry{
		ID:        "id-1",
		Timestamp: at,
		Type:      "low_balance",
		Severity:  alertlog.SeverityHigh,
		Data:      map[string]interface{}{"keeper": "rebalancer"},
	})
	if err != nil {
		t.Fatalf("RecordFromEntry: %v", err)
	}
	if rec.OccurredAt.Location() != time.UTC || !rec.OccurredAt.Equal(at) {
		t.Fatalf("occurred at = %v", rec.OccurredAt)
	}
	var data map[string]string
	if err := json.Unmarshal(rec.Data, &data); err != nil || data["keeper"] != "rebalancer" {
		t.Fatalf("data = %s (%v)", rec.Data, err)
	}

	if _, err := RecordFromEntry(alertlog.Entry{Type: "paused"}); err == nil {
		t.Fatal("entry without id should be rejected")
	}
}

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatal("empty dsn should fail")
	}
}
