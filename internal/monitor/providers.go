package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"vault-monitor/internal/chain"
	"vault-monitor/internal/config"
	"vault-monitor/internal/convert"
	"vault-monitor/internal/network"
)

// Providers reads every base contract whose key names a provider.
func (e *Engine) Providers(ctx context.Context, nc *network.Context) ([]ProviderRecord, error) {
	results, err := e.providerResults(ctx, nc)
	if err != nil {
		return nil, err
	}
	return Records(results), nil
}

func (e *Engine) providerResults(ctx context.Context, nc *network.Context) ([]Result[ProviderRecord], error) {
	if err := checkContext(nc); err != nil {
		return nil, err
	}
	started := time.Now()
	d := nc.Deployment

	results := fanOut(ctx, e.concurrency, d.ProviderKeys(),
		func(ctx context.Context, key string) Result[ProviderRecord] {
			return e.readProvider(ctx, nc.Reader, d, key)
		},
		func(key string, err error) Result[ProviderRecord] {
			return failedProvider(key, d.BaseContracts[key], err)
		},
	)

	e.observe(nc, ViewProviders, started, CountFailed(results))
	return results, nil
}

func providerMode(desc config.ContractDescriptor) string {
	if desc.Mode == "" {
		return config.ProviderModeRates
	}
	return desc.Mode
}

func (e *Engine) readProvider(ctx context.Context, reader chain.Reader, d *config.Deployment, key string) Result[ProviderRecord] {
	desc := d.BaseContracts[key]
	addr := common.HexToAddress(desc.Address)
	status := desc.Status
	if status == "" || status == StatusError {
		status = StatusActive
	}

	rec := ProviderRecord{
		Key:     key,
		Name:    FormatProviderKey(key),
		Address: desc.Address,
		Mode:    providerMode(desc),
		Status:  status,
	}

	if rec.Mode == config.ProviderModeBalance {
		wei, err := reader.BalanceAt(ctx, addr)
		if err != nil {
			e.logger.Warn().Err(err).Str("provider", key).Msg("provider balance read failed")
			return failedProvider(key, desc, err)
		}
		rec.Balance = convert.FormatEther(wei)
		return Ok(rec)
	}

	out, err := reader.Call(ctx, chain.Call{Contract: addr, ABI: &chain.ProviderABI, Method: chain.MethodGetIdentifier})
	if err != nil {
		e.logger.Warn().Err(err).Str("provider", key).Msg("provider identifier read failed")
		return failedProvider(key, desc, err)
	}
	identifier, err := chain.String(out)
	if err != nil {
		return failedProvider(key, desc, fmt.Errorf("decode getIdentifier: %w", err))
	}
	rec.Name = DisplayName(identifier, key)
	rec.Rates, rec.RateErrors = e.readRates(ctx, reader, addr, d)
	return Ok(rec)
}

// readRates degrades each failing vault rate to 0.0000 without failing the provider.
func (e *Engine) readRates(ctx context.Context, reader chain.Reader, provider common.Address, d *config.Deployment) (map[string]string, map[string]string) {
	var (
		mu       sync.Mutex
		rates    = make(map[string]string, len(d.Vaults))
		failures map[string]string
		g        errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for _, token := range d.VaultKeys() {
		vault := common.HexToAddress(d.Vaults[token].Address)
		g.Go(func() error {
			rate, err := readDepositRate(ctx, reader, provider, vault)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rates[token] = convert.ZeroPercent
				if failures == nil {
					failures = make(map[string]string)
				}
				failures[token] = err.Error()
				return nil
			}
			rates[token] = rate
			return nil
		})
	}
	_ = g.Wait()
	return rates, failures
}

func readDepositRate(ctx context.Context, reader chain.Reader, provider, vault common.Address) (string, error) {
	out, err := reader.Call(ctx, chain.Call{
		Contract: provider,
		ABI:      &chain.ProviderABI,
		Method:   chain.MethodGetDepositRate,
		Args:     []interface{}{vault},
	})
	if err != nil {
		return "", err
	}
	raw, err := chain.Uint(out)
	if err != nil {
		return "", fmt.Errorf("decode getDepositRate: %w", err)
	}
	return convert.ToPercentFromRay(raw)
}

func failedProvider(key string, desc config.ContractDescriptor, err error) Result[ProviderRecord] {
	return Failed(ProviderRecord{
		Key:     key,
		Name:    FormatProviderKey(key),
		Address: desc.Address,
		Mode:    providerMode(desc),
		Status:  StatusError,
		Error:   err.Error(),
	}, err)
}
