package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vault-monitor/internal/chain"
	"vault-monitor/internal/config"
	"vault-monitor/internal/convert"
	"vault-monitor/internal/network"
)

const shareDecimals int32 = 18

// Vaults reads every configured vault. One failing vault yields one error record; the rest are unaffected.
func (e *Engine) Vaults(ctx context.Context, nc *network.Context) ([]VaultRecord, error) {
	results, err := e.vaultResults(ctx, nc)
	if err != nil {
		return nil, err
	}
	return Records(results), nil
}

func (e *Engine) vaultResults(ctx context.Context, nc *network.Context) ([]Result[VaultRecord], error) {
	if err := checkContext(nc); err != nil {
		return nil, err
	}
	started := time.Now()
	d := nc.Deployment

	results := fanOut(ctx, e.concurrency, d.VaultKeys(),
		func(ctx context.Context, key string) Result[VaultRecord] {
			return e.readVault(ctx, nc.Reader, key, d.Vaults[key])
		},
		func(key string, err error) Result[VaultRecord] {
			return failedVault(key, d.Vaults[key], err)
		},
	)

	failed := CountFailed(results)
	e.observe(nc, ViewVaults, started, failed)
	e.logger.Debug().Str("network", nc.Name).Int("vaults", len(results)).Int("failed", failed).Msg("vault pass done")
	return results, nil
}

func (e *Engine) readVault(ctx context.Context, reader chain.Reader, key string, desc config.VaultDescriptor) Result[VaultRecord] {
	vault := common.HexToAddress(desc.Address)
	out, err := reader.CallMany(ctx, []chain.Call{
		{Contract: vault, ABI: &chain.VaultABI, Method: chain.MethodTotalAssets},
		{Contract: vault, ABI: &chain.VaultABI, Method: chain.MethodTotalSupply},
		{Contract: vault, ABI: &chain.VaultABI, Method: chain.MethodAsset},
		{Contract: vault, ABI: &chain.VaultABI, Method: chain.MethodActiveProvider},
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("vault", key).Msg("vault read failed")
		return failedVault(key, desc, err)
	}

	assets, err := chain.Uint(out[0])
	if err != nil {
		return failedVault(key, desc, fmt.Errorf("decode totalAssets: %w", err))
	}
	shares, err := chain.Uint(out[1])
	if err != nil {
		return failedVault(key, desc, fmt.Errorf("decode totalSupply: %w", err))
	}
	asset, err := chain.Address(out[2])
	if err != nil {
		return failedVault(key, desc, fmt.Errorf("decode asset: %w", err))
	}
	active, err := chain.Address(out[3])
	if err != nil {
		return failedVault(key, desc, fmt.Errorf("decode activeProvider: %w", err))
	}

	status := desc.Status
	if status == "" {
		status = StatusActive
	}

	info := e.readProviderInfo(ctx, reader, active, vault)
	return Ok(VaultRecord{
		Token:          key,
		Name:           desc.Name,
		Symbol:         desc.Symbol,
		Address:        desc.Address,
		Asset:          asset.Hex(),
		TVL:            convert.FormatTokenAmount(assets, convert.TokenDecimals(key)),
		TotalShares:    convert.FormatTokenAmount(shares, shareDecimals),
		ActiveProvider: active.Hex(),
		ProviderInfo:   &info,
		Status:         status,
	})
}

// readProviderInfo is a separate failure domain: errors land in the sub-record only.
func (e *Engine) readProviderInfo(ctx context.Context, reader chain.Reader, provider, vault common.Address) ProviderInfo {
	out, err := reader.CallMany(ctx, []chain.Call{
		{Contract: provider, ABI: &chain.ProviderABI, Method: chain.MethodGetIdentifier},
		{Contract: provider, ABI: &chain.ProviderABI, Method: chain.MethodGetDepositRate, Args: []interface{}{vault}},
	})
	if err != nil {
		return unknownProvider(provider, err)
	}

	name, err := chain.String(out[0])
	if err != nil {
		return unknownProvider(provider, fmt.Errorf("decode getIdentifier: %w", err))
	}
	rate, err := chain.Uint(out[1])
	if err != nil {
		return unknownProvider(provider, fmt.Errorf("decode getDepositRate: %w", err))
	}

	return ProviderInfo{Address: provider.Hex(), Name: name, APY: convert.PercentFromRayOrZero(rate)}
}

func unknownProvider(provider common.Address, err error) ProviderInfo {
	return ProviderInfo{Address: provider.Hex(), Name: unknown, APY: convert.ZeroPercent, Error: err.Error()}
}

func failedVault(key string, desc config.VaultDescriptor, err error) Result[VaultRecord] {
	return Failed(VaultRecord{
		Token:   key,
		Name:    desc.Name,
		Symbol:  desc.Symbol,
		Address: desc.Address,
		Status:  StatusError,
		Error:   err.Error(),
	}, err)
}
