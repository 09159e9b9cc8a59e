// Package network holds the immutable per-network contexts and the active-network selector.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"vault-monitor/internal/chain"
	"vault-monitor/internal/config"
)

var (
	// ErrUnknownNetwork is returned for names absent from configuration.
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrNetworkUnavailable is returned for networks that failed to initialise at startup.
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// Context binds a chain reader to the deployment it serves. It is never mutated after construction.
type Context struct {
	Name       string
	ChainID    int64
	Reader     chain.Reader
	Deployment *config.Deployment
}

// Dialer opens a reader for one network. Tests substitute fakes.
type Dialer func(ctx context.Context, name string, cfg config.NetworkConfig) (chain.Reader, error)

// DeploymentLoader reads the descriptor of one network.
type DeploymentLoader func(path string) (*config.Deployment, error)

// Registry owns every network initialised at startup.
type Registry struct {
	contexts map[string]*Context
	failures map[string]error
	logger   zerolog.Logger
}

// RegistryOptions customise Registry construction.
type RegistryOptions struct {
	Dial           Dialer
	LoadDeployment DeploymentLoader
	// Only restricts initialisation to the named networks when non-empty.
	Only []string
}

// EthDialer dials go-ethereum readers.
func EthDialer(logger zerolog.Logger) Dialer {
	return func(ctx context.Context, name string, cfg config.NetworkConfig) (chain.Reader, error) {
		reader, err := chain.Dial(ctx, chain.Options{RPCURL: cfg.RPCURL, Timeout: cfg.RequestTimeout},
			logger.With().Str("network", name).Logger())
		if err != nil {
			return nil, err
		}
		return reader, nil
	}
}

// NewRegistry dials, verifies and loads every configured network. A network failing any step
// is recorded as unavailable; the others are still served.
func NewRegistry(ctx context.Context, networks map[string]config.NetworkConfig, opts RegistryOptions, logger zerolog.Logger) *Registry {
	if opts.Dial == nil {
		opts.Dial = EthDialer(logger)
	}
	if opts.LoadDeployment == nil {
		opts.LoadDeployment = config.LoadDeployment
	}

	r := &Registry{
		contexts: make(map[string]*Context),
		failures: make(map[string]error),
		logger:   logger.With().Str("component", "network_registry").Logger(),
	}

	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, strings.ToLower(name))
	}
	if len(opts.Only) > 0 {
		names = names[:0]
		for _, name := range opts.Only {
			names = append(names, strings.ToLower(name))
		}
	}
	sort.Strings(names)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range names {
		cfg, ok := lookup(networks, name)
		if !ok {
			mu.Lock()
			r.failures[name] = fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(name string, cfg config.NetworkConfig) {
			defer wg.Done()
			nc, err := initNetwork(ctx, name, cfg, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.failures[name] = err
				r.logger.Error().Err(err).Str("network", name).Msg("network unavailable")
				return
			}
			r.contexts[name] = nc
			r.logger.Info().Str("network", name).Int64("chain_id", nc.ChainID).
				Int("vaults", len(nc.Deployment.Vaults)).
				Int("keepers", len(nc.Deployment.ChainlinkKeepers)).
				Msg("network initialised")
		}(name, cfg)
	}
	wg.Wait()

	return r
}

func lookup(networks map[string]config.NetworkConfig, name string) (config.NetworkConfig, bool) {
	for k, v := range networks {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return config.NetworkConfig{}, false
}

func initNetwork(ctx context.Context, name string, cfg config.NetworkConfig, opts RegistryOptions) (*Context, error) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reader, err := opts.Dial(dialCtx, name, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", name, err)
	}

	id, err := reader.ChainID(dialCtx)
	if err != nil {
		closeReader(reader)
		return nil, fmt.Errorf("read chain id for %s: %w", name, err)
	}
	if cfg.ChainID != 0 && id.Int64() != cfg.ChainID {
		closeReader(reader)
		return nil, fmt.Errorf("network %s: chain id %s, want %d", name, id, cfg.ChainID)
	}

	deployment, err := opts.LoadDeployment(cfg.DeploymentFile)
	if err != nil {
		closeReader(reader)
		return nil, fmt.Errorf("network %s: %w", name, err)
	}

	return &Context{Name: name, ChainID: id.Int64(), Reader: reader, Deployment: deployment}, nil
}

func closeReader(reader chain.Reader) {
	if c, ok := reader.(io.Closer); ok {
		_ = c.Close()
	}
}

// Get returns the initialised context for name.
func (r *Registry) Get(name string) (*Context, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if nc, ok := r.contexts[name]; ok {
		return nc, nil
	}
	if err, ok := r.failures[name]; ok {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetworkUnavailable, name, err)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
}

// Available lists initialised networks, sorted.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.contexts))
	for name := range r.contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failures reports why networks could not be initialised.
func (r *Registry) Failures() map[string]error {
	out := make(map[string]error, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}

// Close releases every reader.
func (r *Registry) Close() {
	for _, nc := range r.contexts {
		closeReader(nc.Reader)
	}
}

// Selector tracks the active network. Switching swaps a pointer; contexts handed out earlier stay valid.
type Selector struct {
	registry *Registry
	current  atomic.Pointer[Context]
	logger   zerolog.Logger
}

// NewSelector starts on initial, which must be available.
func NewSelector(registry *Registry, initial string, logger zerolog.Logger) (*Selector, error) {
	nc, err := registry.Get(initial)
	if err != nil {
		return nil, err
	}
	s := &Selector{registry: registry, logger: logger.With().Str("component", "network_selector").Logger()}
	s.current.Store(nc)
	return s, nil
}

// Current returns the active context.
func (s *Selector) Current() *Context {
	return s.current.Load()
}

// Switch activates name. Unknown or unavailable networks are rejected and the current one is kept.
func (s *Selector) Switch(name string) (*Context, error) {
	nc, err := s.registry.Get(name)
	if err != nil {
		s.logger.Warn().Err(err).Str("requested", name).Str("current", s.Current().Name).Msg("network switch rejected")
		return s.Current(), err
	}
	prev := s.current.Swap(nc)
	if prev != nc {
		s.logger.Info().Str("from", prev.Name).Str("to", nc.Name).Msg("active network switched")
	}
	return nc, nil
}
