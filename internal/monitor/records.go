package monitor

import (
	"time"

	"vault-monitor/internal/alertlog"
	"vault-monitor/internal/keeper"
)

// Record status values.
const (
	StatusActive = "active"
	StatusError  = "error"
)

// APY source tags.
const (
	SourceBlockchain = "blockchain"
	SourceSimulated  = "simulated"
	SourceError      = "error"
)

const unknown = "unknown"

// ProviderInfo is the nested provider lookup of a vault.
type ProviderInfo struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	APY     string `json:"apy"`
	Error   string `json:"error,omitempty"`
}

// VaultRecord is one vault as of the current pass.
type VaultRecord struct {
	Token          string        `json:"token"`
	Name           string        `json:"name"`
	Symbol         string        `json:"symbol"`
	Address        string        `json:"address"`
	Asset          string        `json:"asset,omitempty"`
	TVL            string        `json:"tvl,omitempty"`
	TotalShares    string        `json:"totalShares,omitempty"`
	ActiveProvider string        `json:"activeProvider,omitempty"`
	ProviderInfo   *ProviderInfo `json:"providerInfo,omitempty"`
	Status         string        `json:"status"`
	Error          string        `json:"error,omitempty"`
}

// ProviderRecord is one yield provider contract.
type ProviderRecord struct {
	Key        string            `json:"key"`
	Name       string            `json:"name"`
	Address    string            `json:"address"`
	Mode       string            `json:"mode"`
	Balance    string            `json:"balance,omitempty"`
	Rates      map[string]string `json:"rates,omitempty"`
	RateErrors map[string]string `json:"rateErrors,omitempty"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
}

// APYRecord is the deposit APY of a vault's active provider.
type APYRecord struct {
	Token           string `json:"token"`
	VaultAddress    string `json:"vaultAddress"`
	AssetAddress    string `json:"assetAddress,omitempty"`
	APY             string `json:"apy"`
	Provider        string `json:"provider"`
	ProviderAddress string `json:"providerAddress"`
	Source          string `json:"source"`
	Error           string `json:"error,omitempty"`
}

// KeeperRecord is one upkeep with its derived health.
type KeeperRecord struct {
	Key          string     `json:"key"`
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	URL          string     `json:"url,omitempty"`
	Network      string     `json:"network"`
	Status       string     `json:"status"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	NextRun      *time.Time `json:"nextRun,omitempty"`
	Balance      string     `json:"balance,omitempty"`
	TotalSpent   string     `json:"totalSpent,omitempty"`
	GasLimit     string     `json:"gasLimit,omitempty"`
	GasPrice     string     `json:"gasPrice,omitempty"`
	TriggerType  string     `json:"triggerType,omitempty"`
	SuccessCount int64      `json:"successCount"`
	FailureCount int64      `json:"failureCount"`
	*keeper.Metrics
	Alerts     []keeper.Alert `json:"alerts"`
	LastUpdate time.Time      `json:"lastUpdate"`
	Error      string         `json:"error,omitempty"`
}

// NetworkInfo is best-effort chain metadata.
type NetworkInfo struct {
	Network     string    `json:"network"`
	ChainID     int64     `json:"chainId,omitempty"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	GasPrice    string    `json:"gasPrice,omitempty"`
	LastUpdate  time.Time `json:"lastUpdate"`
	Error       string    `json:"error,omitempty"`
}

// AlertSummary is the windowed alert statistics plus the most recent entries.
type AlertSummary struct {
	alertlog.Stats
	Window     string           `json:"window"`
	Recent     []alertlog.Entry `json:"recent"`
	LastUpdate time.Time        `json:"lastUpdate"`
}

// Dashboard is the composite snapshot of one network.
type Dashboard struct {
	Network     string            `json:"network"`
	Vaults      []VaultRecord     `json:"vaults"`
	Providers   []ProviderRecord  `json:"providers"`
	APY         []APYRecord       `json:"apy"`
	Keepers     []KeeperRecord    `json:"keepers"`
	NetworkInfo NetworkInfo       `json:"networkInfo"`
	Alerts      AlertSummary      `json:"alerts"`
	Errors      map[string]string `json:"errors,omitempty"`
	LastUpdate  time.Time         `json:"lastUpdate"`
}
