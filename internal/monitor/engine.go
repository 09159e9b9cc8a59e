// Package monitor aggregates vault, provider, APY and keeper views for one network and raises alerts.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vault-monitor/internal/alerting"
	"vault-monitor/internal/alertlog"
	"vault-monitor/internal/automation"
	"vault-monitor/internal/keeper"
	"vault-monitor/internal/metrics"
	"vault-monitor/internal/network"
)

// View names, also used as keys of Dashboard.Errors.
const (
	ViewVaults    = "vaults"
	ViewProviders = "providers"
	ViewAPY       = "apy"
	ViewKeepers   = "keepers"
	ViewNetwork   = "network"
	ViewAlerts    = "alerts"
)

// ErrNoNetwork is returned when a pass is invoked without a network context.
var ErrNoNetwork = errors.New("monitor: network context is required")

// AlertSource is the read side of the alert log.
type AlertSource interface {
	Recent(window time.Duration) []alertlog.Entry
}

// Options wire the engine's collaborators.
type Options struct {
	Sink         alerting.Sink
	Alerts       AlertSource
	Automation   automation.Fetcher
	Thresholds   keeper.Thresholds
	Concurrency  int
	RecentAlerts int
	Window       time.Duration
	Clock        func() time.Time
}

// Engine runs aggregation passes. It holds no per-network state; every call names its network.
type Engine struct {
	sink         alerting.Sink
	alerts       AlertSource
	automation   automation.Fetcher
	thresholds   keeper.Thresholds
	concurrency  int
	recentAlerts int
	window       time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

// New constructs an Engine.
func New(opts Options, logger zerolog.Logger) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.RecentAlerts <= 0 {
		opts.RecentAlerts = 10
	}
	if opts.Window <= 0 {
		opts.Window = alertlog.DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sink == nil {
		opts.Sink = alerting.Multi()
	}
	if opts.Thresholds == (keeper.Thresholds{}) {
		opts.Thresholds = keeper.DefaultThresholds()
	}

	return &Engine{
		sink:         opts.Sink,
		alerts:       opts.Alerts,
		automation:   opts.Automation,
		thresholds:   opts.Thresholds,
		concurrency:  opts.Concurrency,
		recentAlerts: opts.RecentAlerts,
		window:       opts.Window,
		now:          opts.Clock,
		logger:       logger.With().Str("component", "monitor").Logger(),
	}
}

// publish hands an alert to the sink. Delivery failures are logged and counted; they never fail a pass.
// The id is assigned here so that every sink sees the same entry.
func (e *Engine) publish(ctx context.Context, entry alertlog.Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.now()
	}
	if entry.Severity == "" {
		entry.Severity = alertlog.SeverityMedium
	}
	metrics.AlertsRaised.WithLabelValues(entry.Type, string(entry.Severity)).Inc()

	if err := e.sink.Publish(ctx, entry); err != nil {
		metrics.AlertPublishErrors.Inc()
		e.logger.Warn().Err(err).Str("alert_type", entry.Type).Msg("alert delivery failed")
	}
}

func (e *Engine) observe(nc *network.Context, view string, started time.Time, failed int) {
	metrics.ObservePass(nc.Name, view, started, failed > 0)
	if failed > 0 {
		metrics.EntityErrors.WithLabelValues(nc.Name, view).Add(float64(failed))
	}
}

func checkContext(nc *network.Context) error {
	if nc == nil || nc.Reader == nil || nc.Deployment == nil {
		return ErrNoNetwork
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}
