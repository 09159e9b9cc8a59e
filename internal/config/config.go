// Package config loads runtime configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"vault-monitor/internal/keeper"
	"vault-monitor/internal/logging"
)

const (
	// EnvPrefix namespaces every environment override.
	EnvPrefix = "VAULTWATCH"

	// DefaultNetwork is the network monitored when none is selected.
	DefaultNetwork = "arbitrumone"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig                `mapstructure:"app"`
	Logging    logging.Config           `mapstructure:"logging"`
	Scheduler  SchedulerConfig          `mapstructure:"scheduler"`
	Network    string                   `mapstructure:"network"`
	Networks   map[string]NetworkConfig `mapstructure:"networks"`
	Automation AutomationConfig         `mapstructure:"automation"`
	Keeper     KeeperConfig             `mapstructure:"keeper"`
	Monitor    MonitorConfig            `mapstructure:"monitor"`
	AlertLog   AlertLogConfig           `mapstructure:"alertlog"`
	Alerting   AlertingConfig           `mapstructure:"alerting"`
	Database   DatabaseConfig           `mapstructure:"database"`
	Metrics    MetricsConfig            `mapstructure:"metrics"`
	Export     ExportConfig             `mapstructure:"export"`

	// File is the config file actually read, empty when running on defaults.
	File string `mapstructure:"-"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	RunImmediately  bool          `mapstructure:"run_immediately"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// NetworkConfig describes one EVM network and its deployment descriptor.
type NetworkConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	DeploymentFile string        `mapstructure:"deployment_file"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AutomationConfig covers the Chainlink Automation API.
type AutomationConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// KeeperConfig holds the keeper alert thresholds.
type KeeperConfig struct {
	MinBalance           string        `mapstructure:"min_balance"`
	MissedExecutionAfter time.Duration `mapstructure:"missed_execution_after"`
	MinSuccessRate       string        `mapstructure:"min_success_rate"`
	MaxCostPerExecution  string        `mapstructure:"max_cost_per_execution"`
}

// MonitorConfig tunes the aggregation engine.
type MonitorConfig struct {
	Concurrency  int `mapstructure:"concurrency"`
	RecentAlerts int `mapstructure:"recent_alerts"`
}

// AlertLogConfig places and bounds the JSONL alert log.
type AlertLogConfig struct {
	Dir       string        `mapstructure:"dir"`
	Retention time.Duration `mapstructure:"retention"`
	Window    time.Duration `mapstructure:"window"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Channels []string       `mapstructure:"channels"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// TelegramConfig describes Telegram delivery.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig backs the notification cooldown.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
}

// DatabaseConfig encapsulates the optional PostgreSQL alert mirror.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Bucket    time.Duration `mapstructure:"bucket"`
	OutputDir string        `mapstructure:"output_dir"`
}

// Loader keeps the viper instance so that callers can watch the config file.
type Loader struct {
	v *viper.Viper
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return nil, err
	}
	return l.Config()
}

// NewLoader reads .env, then the config file at path (or ./config.yaml when empty).
func NewLoader(path string) (*Loader, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}
	return &Loader{v: v}, nil
}

// Viper exposes the underlying instance.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Config decodes and validates the current settings.
func (l *Loader) Config() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.File = l.v.ConfigFileUsed()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv keeps the variable names existing deployments already export.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"automation.api_key":  {EnvPrefix + "_AUTOMATION_API_KEY", "CHAINLINK_API_KEY"},
		"automation.base_url": {EnvPrefix + "_AUTOMATION_BASE_URL", "CHAINLINK_API_URL"},
		"networks." + DefaultNetwork + ".rpc_url": {
			EnvPrefix + "_NETWORKS_ARBITRUMONE_RPC_URL", "ARBITRUM_ONE_RPC_URL",
		},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vaultwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.run_immediately", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x76617477))

	v.SetDefault("network", DefaultNetwork)
	v.SetDefault("networks."+DefaultNetwork+".rpc_url", "https://arb1.arbitrum.io/rpc")
	v.SetDefault("networks."+DefaultNetwork+".chain_id", 42161)
	v.SetDefault("networks."+DefaultNetwork+".deployment_file", "deployments/arbitrumOne/deployed-vaults.json")
	v.SetDefault("networks."+DefaultNetwork+".request_timeout", "10s")

	v.SetDefault("automation.base_url", "https://automation.chain.link/api/v1")
	v.SetDefault("automation.request_timeout", "10s")
	v.SetDefault("automation.rate_per_second", 5.0)
	v.SetDefault("automation.burst", 5)
	v.SetDefault("automation.user_agent", "vaultwatch/1.0")

	v.SetDefault("keeper.min_balance", "0.1")
	v.SetDefault("keeper.missed_execution_after", "2h")
	v.SetDefault("keeper.min_success_rate", "90")
	v.SetDefault("keeper.max_cost_per_execution", "0.01")

	v.SetDefault("monitor.concurrency", 8)
	v.SetDefault("monitor.recent_alerts", 10)

	v.SetDefault("alertlog.dir", "logs")
	v.SetDefault("alertlog.retention", "168h")
	v.SetDefault("alertlog.window", "24h")

	v.SetDefault("alerting.channels", []string{"console"})
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.redis.prefix", "vaultwatch:alert")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("export.bucket", "1h")
	v.SetDefault("export.output_dir", ".")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// normalize lowercases network names so lookups match viper's key folding.
func (c *Config) normalize() {
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	networks := make(map[string]NetworkConfig, len(c.Networks))
	for name, n := range c.Networks {
		networks[strings.ToLower(name)] = n
	}
	c.Networks = networks

	channels := make([]string, 0, len(c.Alerting.Channels))
	for _, ch := range c.Alerting.Channels {
		if ch = strings.ToLower(strings.TrimSpace(ch)); ch != "" {
			channels = append(channels, ch)
		}
	}
	c.Alerting.Channels = channels
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Monitor.Concurrency <= 0 {
		return fmt.Errorf("monitor.concurrency must be greater than zero")
	}
	if c.AlertLog.Dir == "" {
		return fmt.Errorf("alertlog.dir must be set")
	}
	if c.AlertLog.Retention < 0 {
		return fmt.Errorf("alertlog.retention cannot be negative")
	}
	if c.AlertLog.Window <= 0 {
		return fmt.Errorf("alertlog.window must be greater than zero")
	}
	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network must be configured")
	}
	if _, ok := c.Networks[c.Network]; !ok {
		return fmt.Errorf("active network %q is not configured (known: %s)", c.Network, strings.Join(c.NetworkNames(), ", "))
	}
	for name, n := range c.Networks {
		if n.RPCURL == "" {
			return fmt.Errorf("networks.%s.rpc_url must be set", name)
		}
		if n.DeploymentFile == "" {
			return fmt.Errorf("networks.%s.deployment_file must be set", name)
		}
	}
	if _, err := c.Thresholds(); err != nil {
		return err
	}
	for _, ch := range c.Alerting.Channels {
		switch ch {
		case "console", "telegram":
		default:
			return fmt.Errorf("alerting.channels: unknown channel %q", ch)
		}
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.TelegramEnabled() {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	if c.Export.Bucket <= 0 {
		return fmt.Errorf("export.bucket must be greater than zero")
	}
	return nil
}

// TelegramEnabled reports whether alerts are routed to Telegram.
func (c *Config) TelegramEnabled() bool {
	if c.Alerting.Telegram.Enabled {
		return true
	}
	for _, ch := range c.Alerting.Channels {
		if ch == "telegram" {
			return true
		}
	}
	return false
}

// NetworkNames lists configured networks in sorted order.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Thresholds converts the keeper section into evaluator thresholds.
func (c *Config) Thresholds() (keeper.Thresholds, error) {
	th := keeper.DefaultThresholds()
	parse := func(field, raw string, dst *decimal.Decimal) error {
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("keeper.%s: %w", field, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("keeper.%s cannot be negative", field)
		}
		*dst = d
		return nil
	}

	if err := parse("min_balance", c.Keeper.MinBalance, &th.MinBalance); err != nil {
		return keeper.Thresholds{}, err
	}
	if err := parse("min_success_rate", c.Keeper.MinSuccessRate, &th.MinSuccessRate); err != nil {
		return keeper.Thresholds{}, err
	}
	if err := parse("max_cost_per_execution", c.Keeper.MaxCostPerExecution, &th.MaxCostPerExecution); err != nil {
		return keeper.Thresholds{}, err
	}
	if c.Keeper.MissedExecutionAfter < 0 {
		return keeper.Thresholds{}, fmt.Errorf("keeper.missed_execution_after cannot be negative")
	}
	if c.Keeper.MissedExecutionAfter > 0 {
		th.MissedExecutionAfter = c.Keeper.MissedExecutionAfter
	}
	return th, nil
}
