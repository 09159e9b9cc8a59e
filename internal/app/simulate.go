package app

import (
	"context"
	"encoding/json"
	"time"

	"vault-monitor/internal/keeper"
	"vault-monitor/internal/monitor"
)

// SimulateOptions describe a synthetic upkeep.
type SimulateOptions struct {
	Key            string
	Status         string
	Balance        string
	TotalSpent     string
	ExecutionCount int64
	SuccessCount   int64
	FailureCount   int64
	// LastRunAgo places the last execution in the past; zero means never run.
	LastRunAgo time.Duration
}

// SimulateKeeper evaluates synthetic upkeep values, publishes the alerts through the configured sinks,
// and prints the resulting keeper record.
func (a *App) SimulateKeeper(ctx context.Context, opts SimulateOptions) error {
	if opts.Key == "" {
		opts.Key = "simulated"
	}

	upkeep := keeper.Upkeep{
		Status:         opts.Status,
		Balance:        opts.Balance,
		TotalSpent:     opts.TotalSpent,
		ExecutionCount: opts.ExecutionCount,
		SuccessCount:   opts.SuccessCount,
		FailureCount:   opts.FailureCount,
		TriggerType:    "time-based",
	}
	if opts.LastRunAgo > 0 {
		last := time.Now().UTC().Add(-opts.LastRunAgo)
		upkeep.LastRun = &last
	}

	engine, closeFn, err := a.simulationEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	record := engine.SimulateKeeper(ctx, opts.Key, upkeep)

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}

// simulationEngine wires only the alert sinks; no network is dialed.
func (a *App) simulationEngine(ctx context.Context) (*monitor.Engine, func(), error) {
	_, sink, alertLog, closeFn, err := a.openSinks(ctx)
	if err != nil {
		return nil, nil, err
	}
	thresholds, err := a.Config.Thresholds()
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	engine := monitor.New(monitor.Options{
		Sink:       sink,
		Alerts:     alertLog,
		Thresholds: thresholds,
		Window:     a.Config.AlertLog.Window,
	}, a.Logger)
	return engine, closeFn, nil
}
