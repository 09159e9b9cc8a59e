package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vault-monitor/internal/chain"
	"vault-monitor/internal/config"
	"vault-monitor/internal/convert"
	"vault-monitor/internal/metrics"
	"vault-monitor/internal/network"
)

// APY resolves each vault's active provider and its deposit rate for the vault.
func (e *Engine) APY(ctx context.Context, nc *network.Context) ([]APYRecord, error) {
	results, err := e.apyResults(ctx, nc)
	if err != nil {
		return nil, err
	}
	return Records(results), nil
}

func (e *Engine) apyResults(ctx context.Context, nc *network.Context) ([]Result[APYRecord], error) {
	if err := checkContext(nc); err != nil {
		return nil, err
	}
	started := time.Now()
	d := nc.Deployment

	results := fanOut(ctx, e.concurrency, d.VaultKeys(),
		func(ctx context.Context, key string) Result[APYRecord] {
			return e.readAPY(ctx, nc.Reader, key, d.Vaults[key])
		},
		func(key string, err error) Result[APYRecord] {
			return failedAPY(key, d.Vaults[key], err)
		},
	)

	for _, r := range results {
		if r.IsFailed() {
			continue
		}
		if apy, err := parseFloat(r.Record.APY); err == nil {
			metrics.VaultAPY.WithLabelValues(nc.Name, r.Record.Token).Set(apy)
		}
	}
	e.observe(nc, ViewAPY, started, CountFailed(results))
	return results, nil
}

func (e *Engine) readAPY(ctx context.Context, reader chain.Reader, key string, desc config.VaultDescriptor) Result[APYRecord] {
	vault := common.HexToAddress(desc.Address)

	out, err := reader.Call(ctx, chain.Call{Contract: vault, ABI: &chain.VaultABI, Method: chain.MethodActiveProvider})
	if err != nil {
		return failedAPY(key, desc, err)
	}
	provider, err := chain.Address(out)
	if err != nil {
		return failedAPY(key, desc, fmt.Errorf("decode activeProvider: %w", err))
	}

	values, err := reader.CallMany(ctx, []chain.Call{
		{Contract: provider, ABI: &chain.ProviderABI, Method: chain.MethodGetDepositRate, Args: []interface{}{vault}},
		{Contract: provider, ABI: &chain.ProviderABI, Method: chain.MethodGetIdentifier},
	})
	if err != nil {
		return failedAPY(key, desc, err)
	}
	raw, err := chain.Uint(values[0])
	if err != nil {
		return failedAPY(key, desc, fmt.Errorf("decode getDepositRate: %w", err))
	}
	name, err := chain.String(values[1])
	if err != nil {
		return failedAPY(key, desc, fmt.Errorf("decode getIdentifier: %w", err))
	}
	apy, err := convert.ToPercentFromRay(raw)
	if err != nil {
		return failedAPY(key, desc, err)
	}

	return Ok(APYRecord{
		Token:           key,
		VaultAddress:    desc.Address,
		AssetAddress:    desc.Asset,
		APY:             apy,
		Provider:        name,
		ProviderAddress: provider.Hex(),
		Source:          SourceBlockchain,
	})
}

func failedAPY(key string, desc config.VaultDescriptor, err error) Result[APYRecord] {
	return Failed(APYRecord{
		Token:           key,
		VaultAddress:    desc.Address,
		AssetAddress:    desc.Asset,
		APY:             convert.ZeroPercent,
		Provider:        unknown,
		ProviderAddress: unknown,
		Source:          SourceError,
		Error:           err.Error(),
	}, err)
}
