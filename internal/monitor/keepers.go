package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vault-monitor/internal/alertlog"
	"vault-monitor/internal/config"
	"vault-monitor/internal/keeper"
	"vault-monitor/internal/metrics"
	"vault-monitor/internal/network"
)

// ErrNotConfigured is returned when the keeper pass runs without an automation client.
var ErrNotConfigured = errors.New("monitor: automation client not configured")

// Keepers fetches every upkeep, derives its health and publishes the alerts it raises.
func (e *Engine) Keepers(ctx context.Context, nc *network.Context) ([]KeeperRecord, error) {
	results, err := e.keeperResults(ctx, nc)
	if err != nil {
		return nil, err
	}
	return Records(results), nil
}

func (e *Engine) keeperResults(ctx context.Context, nc *network.Context) ([]Result[KeeperRecord], error) {
	if nc == nil || nc.Deployment == nil {
		return nil, ErrNoNetwork
	}
	if e.automation == nil {
		return nil, ErrNotConfigured
	}
	started := time.Now()
	d := nc.Deployment

	results := fanOut(ctx, e.concurrency, d.KeeperKeys(),
		func(ctx context.Context, key string) Result[KeeperRecord] {
			return e.readKeeper(ctx, nc.Name, key, d.ChainlinkKeepers[key])
		},
		func(key string, err error) Result[KeeperRecord] {
			return e.failedKeeper(nc.Name, key, d.ChainlinkKeepers[key], err, e.now())
		},
	)

	e.observe(nc, ViewKeepers, started, CountFailed(results))
	return results, nil
}

func (e *Engine) readKeeper(ctx context.Context, networkName, key string, desc config.KeeperDescriptor) Result[KeeperRecord] {
	upkeep, err := e.automation.FetchUpkeep(ctx, desc.ID)
	now := e.now()
	if err != nil {
		e.logger.Warn().Err(err).Str("keeper", key).Str("upkeep", desc.ID).Msg("keeper fetch failed")
		e.publish(ctx, alertlog.Entry{
			Timestamp: now,
			Type:      string(keeper.AlertKeeperError),
			Severity:  alertlog.SeverityMedium,
			Data: map[string]interface{}{
				"keeper":     key,
				"keeperId":   desc.ID,
				"keeperName": desc.Name,
				"network":    networkName,
				"error":      err.Error(),
			},
		})
		return e.failedKeeper(networkName, key, desc, err, now)
	}

	m, alerts := keeper.Evaluate(upkeep, now, e.thresholds)
	for _, a := range alerts {
		e.publish(ctx, alertlog.Entry{
			Timestamp: a.Timestamp,
			Type:      string(a.Type),
			Severity:  a.Severity,
			Data: map[string]interface{}{
				"keeper":     key,
				"keeperId":   desc.ID,
				"keeperName": desc.Name,
				"network":    networkName,
				"message":    a.Message,
			},
		})
	}
	if rate, err := parseFloat(m.SuccessRate); err == nil {
		metrics.KeeperSuccessRate.WithLabelValues(networkName, key).Set(rate)
	}

	return Ok(KeeperRecord{
		Key:          key,
		ID:           desc.ID,
		Name:         desc.Name,
		Description:  desc.Description,
		URL:          desc.URL,
		Network:      networkName,
		Status:       upkeep.Status,
		LastRun:      upkeep.LastRun,
		NextRun:      upkeep.NextRun,
		Balance:      upkeep.Balance,
		TotalSpent:   upkeep.TotalSpent,
		GasLimit:     upkeep.GasLimit,
		GasPrice:     upkeep.GasPrice,
		TriggerType:  upkeep.TriggerType,
		SuccessCount: upkeep.SuccessCount,
		FailureCount: upkeep.FailureCount,
		Metrics:      &m,
		Alerts:       alerts,
		LastUpdate:   now,
	})
}

func (e *Engine) failedKeeper(networkName, key string, desc config.KeeperDescriptor, err error, now time.Time) Result[KeeperRecord] {
	return Failed(KeeperRecord{
		Key:         key,
		ID:          desc.ID,
		Name:        desc.Name,
		Description: desc.Description,
		URL:         desc.URL,
		Network:     networkName,
		Status:      StatusError,
		Alerts: []keeper.Alert{{
			Type:      keeper.AlertKeeperError,
			Message:   fmt.Sprintf("Failed to fetch data: %s", err.Error()),
			Severity:  alertlog.SeverityHigh,
			Timestamp: now,
		}},
		LastUpdate: now,
		Error:      err.Error(),
	}, err)
}

// SimulateKeeper evaluates a synthetic upkeep and publishes its alerts like a live pass would.
func (e *Engine) SimulateKeeper(ctx context.Context, key string, upkeep keeper.Upkeep) KeeperRecord {
	now := e.now()
	m, alerts := keeper.Evaluate(upkeep, now, e.thresholds)
	for _, a := range alerts {
		e.publish(ctx, alertlog.Entry{
			Timestamp: a.Timestamp,
			Type:      string(a.Type),
			Severity:  a.Severity,
			Data: map[string]interface{}{
				"keeper":  key,
				"message": a.Message,
				"source":  SourceSimulated,
			},
		})
	}
	return KeeperRecord{
		Key:          key,
		ID:           key,
		Name:         key,
		Network:      SourceSimulated,
		Status:       upkeep.Status,
		LastRun:      upkeep.LastRun,
		Balance:      upkeep.Balance,
		TotalSpent:   upkeep.TotalSpent,
		SuccessCount: upkeep.SuccessCount,
		FailureCount: upkeep.FailureCount,
		Metrics:      &m,
		Alerts:       alerts,
		LastUpdate:   now,
	}
}
