package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vault-monitor/internal/alerting"
	"vault-monitor/internal/alertlog"
	"vault-monitor/internal/automation"
	"vault-monitor/internal/config"
	"vault-monitor/internal/metrics"
	"vault-monitor/internal/monitor"
	"vault-monitor/internal/network"
	"vault-monitor/internal/scheduler"
	"vault-monitor/internal/service"
	"vault-monitor/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Loader *config.Loader
	Logger zerolog.Logger
	// Out receives command output; logs go to the logger's writer.
	Out io.Writer

	// dial replaces the go-ethereum dialer in tests.
	dial network.Dialer
}

// NewApp constructs a new application handle.
func NewApp(loader *config.Loader, cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Loader: loader,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

// deps are the collaborators shared by every command that runs a pass.
type deps struct {
	alertLog *alertlog.Store
	store    *storage.Store
	registry *network.Registry
	selector *network.Selector
	engine   *monitor.Engine
	closers  []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func (a *App) openAlertLog() (*alertlog.Store, error) {
	return alertlog.Open(a.Config.AlertLog.Dir, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool, a.Logger)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

// newNotifier builds the outbound channels, wrapped in the Redis cooldown when configured.
func (a *App) newNotifier(ctx context.Context) (alerting.Sink, func()) {
	var channels []alerting.Sink
	for _, ch := range a.Config.Alerting.Channels {
		if ch == "console" {
			channels = append(channels, alerting.NewConsoleSink(a.Logger))
		}
	}
	if a.Config.TelegramEnabled() {
		tg := a.Config.Alerting.Telegram
		channels = append(channels, alerting.NewTelegramSink(alerting.TelegramOptions{
			BotToken: tg.BotToken,
			ChatID:   tg.ChatID,
			BaseURL:  tg.APIBase,
			Timeout:  tg.Timeout,
		}, a.Logger))
	}
	notifier := alerting.Multi(channels...)

	redisCfg := a.Config.Alerting.Redis
	if redisCfg.URL == "" || a.Config.Alerting.Cooldown <= 0 {
		return notifier, func() {}
	}
	rdb, err := alerting.NewRedisClient(ctx, redisCfg.URL, redisCfg.Password)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("redis unavailable; alert cooldown disabled")
		return notifier, func() {}
	}
	cooled := alerting.NewCooldownSink(notifier, rdb, a.Config.Alerting.Cooldown, redisCfg.Prefix, a.Logger)
	return cooled, func() { _ = rdb.Close() }
}

// openSinks wires the alert log, the optional PostgreSQL mirror and the notifiers into one sink.
// The returned close func releases every connection it opened.
func (a *App) openSinks(ctx context.Context) (*storage.Store, alerting.Sink, *alertlog.Store, func(), error) {
	alertLog, err := a.openAlertLog()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	notifier, closeNotifier := a.newNotifier(ctx)

	sinks := []alerting.Sink{alertLog}
	if store != nil {
		sinks = append(sinks, store)
	} else {
		a.Logger.Debug().Msg("database.dsn not configured; alert mirror disabled")
	}
	sinks = append(sinks, notifier)

	closeFn := func() {
		closeNotifier()
		if closeStore != nil {
			closeStore()
		}
	}
	return store, alerting.Multi(sinks...), alertLog, closeFn, nil
}

// open wires sinks, networks and the engine. only restricts network initialisation;
// nil initialises every configured network.
func (a *App) open(ctx context.Context, only []string) (*deps, error) {
	d := &deps{}

	store, sink, alertLog, closeSinks, err := a.openSinks(ctx)
	if err != nil {
		return nil, err
	}
	d.alertLog = alertLog
	d.store = store
	d.closers = append(d.closers, closeSinks)

	thresholds, err := a.Config.Thresholds()
	if err != nil {
		d.close()
		return nil, err
	}

	auto := a.Config.Automation
	client := automation.NewClient(automation.Options{
		BaseURL:       auto.BaseURL,
		APIKey:        auto.APIKey,
		Timeout:       auto.RequestTimeout,
		RatePerSecond: auto.RatePerSecond,
		Burst:         auto.Burst,
		UserAgent:     auto.UserAgent,
	}, a.Logger)
	if auto.APIKey == "" {
		a.Logger.Warn().Msg("automation.api_key not configured; keeper reads will fail")
	}

	d.registry = network.NewRegistry(ctx, a.Config.Networks, network.RegistryOptions{
		Dial: a.dial,
		Only: only,
	}, a.Logger)
	d.closers = append(d.closers, d.registry.Close)

	selector, err := network.NewSelector(d.registry, a.Config.Network, a.Logger)
	if err != nil {
		d.close()
		return nil, err
	}
	d.selector = selector

	d.engine = monitor.New(monitor.Options{
		Sink:         sink,
		Alerts:       alertLog,
		Automation:   client,
		Thresholds:   thresholds,
		Concurrency:  a.Config.Monitor.Concurrency,
		RecentAlerts: a.Config.Monitor.RecentAlerts,
		Window:       a.Config.AlertLog.Window,
	}, a.Logger)
	return d, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := a.open(ctx, nil)
	if err != nil {
		return err
	}
	defer d.close()

	d.alertLog.Prune(a.Config.AlertLog.Retention)

	if a.Loader != nil {
		a.watchConfig(d.selector)
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		RunImmediately: a.Config.Scheduler.RunImmediately,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	opts := service.Options{
		Scheduler: sched,
		Runner:    d.engine,
		Networks:  d.selector,
		MetricLog: d.alertLog,
	}
	if d.store != nil {
		opts.Snapshots = d.store
		opts.Locker = d.store
		opts.LockKey = a.Config.Scheduler.AdvisoryLockKey
	}
	svc := service.New(opts, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Serve(gctx, a.Config.Metrics.ListenAddr, a.Logger)
	})
	g.Go(func() error {
		a.Logger.Info().
			Str("network", d.selector.Current().Name).
			Strs("available", d.registry.Available()).
			Dur("interval", a.Config.Scheduler.Interval).
			Msg("starting monitoring service")
		return svc.Run(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// watchConfig switches the active network when the config file changes.
func (a *App) watchConfig(selector *network.Selector) {
	if a.Config.File == "" {
		return
	}
	v := a.Loader.Viper()
	v.OnConfigChange(func(ev fsnotify.Event) {
		a.Logger.Debug().Str("op", ev.Op.String()).Msg("config file changed")
		a.reloadNetwork(selector)
	})
	v.WatchConfig()
	a.Logger.Info().Str("file", a.Config.File).Msg("watching config for network changes")
}

// reloadNetwork re-reads the config and applies a changed active network. Invalid configs are
// ignored and the current network is kept.
func (a *App) reloadNetwork(selector *network.Selector) {
	cfg, err := a.Loader.Config()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("config reload rejected")
		return
	}
	if cfg.Network == selector.Current().Name {
		return
	}
	if _, err := selector.Switch(cfg.Network); err != nil {
		return
	}
	a.Config.Network = cfg.Network
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.Out, format, args...)
}
