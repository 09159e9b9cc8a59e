package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"vault-monitor/internal/monitor"
	"vault-monitor/internal/network"
	"vault-monitor/internal/scheduler"
	"vault-monitor/internal/storage"
)

// DashboardRunner assembles one dashboard for a network.
type DashboardRunner interface {
	Dashboard(ctx context.Context, nc *network.Context) (*monitor.Dashboard, error)
}

// NetworkSource yields the active network on every tick.
type NetworkSource interface {
	Current() *network.Context
}

// MetricLogger receives one metrics-log line per tick.
type MetricLogger interface {
	LogMetric(metricType string, data map[string]interface{})
}

// Options wire the poller's collaborators. Snapshots and Locker are optional.
type Options struct {
	Scheduler *scheduler.Scheduler
	Runner    DashboardRunner
	Networks  NetworkSource
	MetricLog MetricLogger
	Snapshots storage.SnapshotStore
	Locker    storage.AdvisoryLocker
	LockKey   int64
}

// Service runs the scheduled dashboard passes for the active network.
type Service struct {
	scheduler *scheduler.Scheduler
	runner    DashboardRunner
	networks  NetworkSource
	metricLog MetricLogger
	snapshots storage.SnapshotStore
	locker    storage.AdvisoryLocker
	lockKey   int64
	logger    zerolog.Logger

	latest atomic.Pointer[monitor.Dashboard]
}

// New constructs the polling service.
func New(opts Options, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: opts.Scheduler,
		runner:    opts.Runner,
		networks:  opts.Networks,
		metricLog: opts.MetricLog,
		snapshots: opts.Snapshots,
		locker:    opts.Locker,
		lockKey:   opts.LockKey,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// Latest returns the most recent dashboard, or nil before the first tick.
func (s *Service) Latest() *monitor.Dashboard {
	return s.latest.Load()
}

// ProcessBucket runs one dashboard pass unless another poller holds the advisory lock.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeBucket(ctx, bucket)
}

func (s *Service) executeBucket(ctx context.Context, bucket time.Time) error {
	if s.runner == nil || s.networks == nil {
		return fmt.Errorf("dashboard runner not configured")
	}
	nc := s.networks.Current()
	if nc == nil {
		return fmt.Errorf("no active network")
	}

	dash, err := s.runner.Dashboard(ctx, nc)
	if err != nil {
		return fmt.Errorf("dashboard %s: %w", nc.Name, err)
	}
	s.latest.Store(dash)

	failed := countFailed(dash)
	if s.metricLog != nil {
		s.metricLog.LogMetric("dashboard", map[string]interface{}{
			"network":     nc.Name,
			"bucket":      bucket,
			"vaults":      len(dash.Vaults),
			"providers":   len(dash.Providers),
			"keepers":     len(dash.Keepers),
			"failed":      failed,
			"viewErrors":  len(dash.Errors),
			"alerts":      dash.Alerts.Total,
			"blockNumber": dash.NetworkInfo.BlockNumber,
		})
	}

	if s.snapshots != nil {
		if err := s.saveSnapshot(ctx, bucket, dash, failed); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist snapshot")
		}
	}

	s.logger.Info().Time("bucket", bucket).
		Str("network", nc.Name).
		Int("failed_records", failed).
		Int("alerts", dash.Alerts.Total).
		Msg("dashboard recorded")
	return nil
}

func (s *Service) saveSnapshot(ctx context.Context, bucket time.Time, dash *monitor.Dashboard, failed int) error {
	payload, err := json.Marshal(dash)
	if err != nil {
		return fmt.Errorf("marshal dashboard: %w", err)
	}
	snap := storage.DashboardSnapshot{
		Network:    dash.Network,
		Bucket:     bucket,
		VaultCount: len(dash.Vaults),
		ErrorCount: failed + len(dash.Errors),
		AlertCount: dash.Alerts.Total,
		Payload:    payload,
	}
	if dash.NetworkInfo.BlockNumber != 0 {
		block := int64(dash.NetworkInfo.BlockNumber)
		snap.BlockNumber = &block
	}
	return s.snapshots.UpsertSnapshot(ctx, snap)
}

func countFailed(dash *monitor.Dashboard) int {
	n := 0
	for _, v := range dash.Vaults {
		if v.Error != "" {
			n++
		}
	}
	for _, p := range dash.Providers {
		if p.Error != "" {
			n++
		}
	}
	for _, a := range dash.APY {
		if a.Error != "" {
			n++
		}
	}
	for _, k := range dash.Keepers {
		if k.Error != "" {
			n++
		}
	}
	return n
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
