package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Provider read modes for base contracts.
const (
	ProviderModeRates   = "rates"
	ProviderModeBalance = "balance"
)

// Deployment is the per-network descriptor of vaults, auxiliary contracts and keepers.
type Deployment struct {
	Vaults           map[string]VaultDescriptor    `json:"vaults"`
	BaseContracts    map[string]ContractDescriptor `json:"baseContracts"`
	ChainlinkKeepers map[string]KeeperDescriptor   `json:"chainlinkKeepers"`
}

// VaultDescriptor locates one vault. The map key is its token symbol.
type VaultDescriptor struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Status  string `json:"status"`
	Asset   string `json:"asset,omitempty"`
}

// ContractDescriptor is an auxiliary contract; keys containing "Provider" are yield providers.
type ContractDescriptor struct {
	Address string `json:"address"`
	Status  string `json:"status"`
	Mode    string `json:"mode,omitempty"`
}

// KeeperDescriptor identifies one Chainlink Automation upkeep.
type KeeperDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// LoadDeployment reads and validates a deployment JSON file.
func LoadDeployment(path string) (*Deployment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployment %s: %w", path, err)
	}
	return ParseDeployment(raw)
}

// ParseDeployment decodes and validates a deployment document.
func ParseDeployment(raw []byte) (*Deployment, error) {
	var d Deployment
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode deployment: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks the descriptor shapes once so that the engine can trust them.
func (d *Deployment) Validate() error {
	for key, v := range d.Vaults {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("vault with empty key")
		}
		if !common.IsHexAddress(v.Address) {
			return fmt.Errorf("vaults.%s.address %q is not a hex address", key, v.Address)
		}
		if v.Asset != "" && !common.IsHexAddress(v.Asset) {
			return fmt.Errorf("vaults.%s.asset %q is not a hex address", key, v.Asset)
		}
	}
	for key, c := range d.BaseContracts {
		if !common.IsHexAddress(c.Address) {
			return fmt.Errorf("baseContracts.%s.address %q is not a hex address", key, c.Address)
		}
		switch c.Mode {
		case "", ProviderModeRates, ProviderModeBalance:
		default:
			return fmt.Errorf("baseContracts.%s.mode %q must be %q or %q", key, c.Mode, ProviderModeRates, ProviderModeBalance)
		}
	}
	for key, k := range d.ChainlinkKeepers {
		if strings.TrimSpace(k.ID) == "" {
			return fmt.Errorf("chainlinkKeepers.%s.id must be set", key)
		}
	}
	return nil
}

// VaultKeys returns vault keys in sorted order.
func (d *Deployment) VaultKeys() []string {
	return sortedKeys(d.Vaults)
}

// ProviderKeys returns the base contracts treated as providers, sorted.
func (d *Deployment) ProviderKeys() []string {
	keys := make([]string, 0)
	for _, key := range sortedKeys(d.BaseContracts) {
		if strings.Contains(key, "Provider") {
			keys = append(keys, key)
		}
	}
	return keys
}

// KeeperKeys returns keeper keys in sorted order.
func (d *Deployment) KeeperKeys() []string {
	return sortedKeys(d.ChainlinkKeepers)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
