// Package metrics defines the Prometheus instruments exported by vaultwatch.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "vaultwatch"

// Aggregation passes.

var (
	PassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pass",
		Name:      "total",
		Help:      "Aggregation passes per view and outcome.",
	}, []string{"network", "view", "status"})

	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pass",
		Name:      "duration_seconds",
		Help:      "Duration of one aggregation pass per view.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"network", "view"})

	EntityErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pass",
		Name:      "entity_errors_total",
		Help:      "Entities emitted with status error.",
	}, []string{"network", "view"})

	LastDashboard = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dashboard",
		Name:      "last_success_timestamp",
		Help:      "Unix time of the last assembled dashboard.",
	}, []string{"network"})
)

// Domain gauges.

var (
	VaultAPY = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "vault",
		Name:      "apy_percent",
		Help:      "Deposit APY of the active provider per vault.",
	}, []string{"network", "vault"})

	KeeperSuccessRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "keeper",
		Name:      "success_rate_percent",
		Help:      "Upkeep success rate.",
	}, []string{"network", "keeper"})

	BlockNumber = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "block_number",
		Help:      "Latest block number seen per network.",
	}, []string{"network"})
)

// Alerts.

var (
	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "raised_total",
		Help:      "Alerts raised per type and severity.",
	}, []string{"type", "severity"})

	AlertPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "publish_errors_total",
		Help:      "Alerts that at least one sink failed to deliver.",
	})
)

// ObservePass records the outcome of one view pass.
func ObservePass(network, view string, started time.Time, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	PassTotal.WithLabelValues(network, view, status).Inc()
	PassDuration.WithLabelValues(network, view).Observe(time.Since(started).Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr disables the listener.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	if addr == "" {
		return nil
	}
	logger = logger.With().Str("component", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
