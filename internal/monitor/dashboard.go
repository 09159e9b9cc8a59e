package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vault-monitor/internal/alertlog"
	"vault-monitor/internal/convert"
	"vault-monitor/internal/metrics"
	"vault-monitor/internal/network"
)

// NetworkInfo reads chain id, block number and gas price. Failures are reported in the Error field.
func (e *Engine) NetworkInfo(ctx context.Context, nc *network.Context) NetworkInfo {
	info := NetworkInfo{LastUpdate: e.now()}
	if err := checkContext(nc); err != nil {
		info.Error = err.Error()
		return info
	}
	info.Network = nc.Name

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	fail := func(what string, err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
	}

	g.Go(func() error {
		id, err := nc.Reader.ChainID(ctx)
		if err != nil {
			fail("chain id", err)
			return nil
		}
		mu.Lock()
		info.ChainID = id.Int64()
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		block, err := nc.Reader.BlockNumber(ctx)
		if err != nil {
			fail("block number", err)
			return nil
		}
		mu.Lock()
		info.BlockNumber = block
		mu.Unlock()
		metrics.BlockNumber.WithLabelValues(nc.Name).Set(float64(block))
		return nil
	})
	g.Go(func() error {
		price, err := nc.Reader.GasPrice(ctx)
		if err != nil {
			fail("gas price", err)
			return nil
		}
		mu.Lock()
		info.GasPrice = convert.FormatGwei(price)
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		info.Error = err.Error()
	}
	return info
}

// AlertSummary aggregates the alert log over the configured window.
func (e *Engine) AlertSummary() AlertSummary {
	summary := AlertSummary{
		Stats:      alertlog.Summarize(nil),
		Window:     e.window.String(),
		Recent:     []alertlog.Entry{},
		LastUpdate: e.now(),
	}
	if e.alerts == nil {
		return summary
	}

	recent := e.alerts.Recent(e.window)
	summary.Stats = alertlog.Summarize(recent)
	if len(recent) > e.recentAlerts {
		recent = recent[:e.recentAlerts]
	}
	summary.Recent = recent
	return summary
}

// Dashboard runs the four passes and the network read concurrently. A failing or panicking view is
// reported in Errors without discarding the others. The alert summary is read last so that it
// includes alerts raised by this pass.
func (e *Engine) Dashboard(ctx context.Context, nc *network.Context) (*Dashboard, error) {
	if err := checkContext(nc); err != nil {
		return nil, err
	}
	started := time.Now()

	dash := &Dashboard{
		Network:   nc.Name,
		Vaults:    []VaultRecord{},
		Providers: []ProviderRecord{},
		APY:       []APYRecord{},
		Keepers:   []KeeperRecord{},
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		errMap = make(map[string]string)
	)
	run := func(view string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					errMap[view] = fmt.Sprintf("panic: %v", r)
					mu.Unlock()
					e.logger.Error().Str("view", view).Interface("panic", r).Msg("view panicked")
				}
			}()
			if err := fn(); err != nil {
				mu.Lock()
				errMap[view] = err.Error()
				mu.Unlock()
			}
		}()
	}

	run(ViewVaults, func() error {
		v, err := e.Vaults(ctx, nc)
		if err == nil {
			dash.Vaults = v
		}
		return err
	})
	run(ViewProviders, func() error {
		p, err := e.Providers(ctx, nc)
		if err == nil {
			dash.Providers = p
		}
		return err
	})
	run(ViewAPY, func() error {
		a, err := e.APY(ctx, nc)
		if err == nil {
			dash.APY = a
		}
		return err
	})
	run(ViewKeepers, func() error {
		k, err := e.Keepers(ctx, nc)
		if err == nil {
			dash.Keepers = k
		}
		return err
	})
	run(ViewNetwork, func() error {
		dash.NetworkInfo = e.NetworkInfo(ctx, nc)
		return nil
	})
	wg.Wait()

	func() {
		defer func() {
			if r := recover(); r != nil {
				errMap[ViewAlerts] = fmt.Sprintf("panic: %v", r)
			}
		}()
		dash.Alerts = e.AlertSummary()
	}()

	if len(errMap) > 0 {
		dash.Errors = errMap
	}
	dash.LastUpdate = e.now()
	metrics.LastDashboard.WithLabelValues(nc.Name).Set(float64(dash.LastUpdate.Unix()))

	e.logger.Info().Str("network", nc.Name).
		Int("vaults", len(dash.Vaults)).
		Int("providers", len(dash.Providers)).
		Int("keepers", len(dash.Keepers)).
		Int("view_errors", len(errMap)).
		Dur("elapsed", time.Since(started)).
		Msg("dashboard assembled")
	return dash, nil
}
