// Command livermore runs one exchange instance of the MACD-V analytics
// pipeline: it loads configuration, dials Redis and SQLite, builds the
// exchange adapter, and hands everything to internal/app for the process
// lifetime. Grounded on cmd/main.go's P9MicroStream struct-based
// initialize/start/waitForShutdown/shutdown lifecycle and signal handling,
// narrowed to this pipeline's own collaborators.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"livermore/internal/app"
	"livermore/internal/cache/rediscache"
	"livermore/internal/chart"
	"livermore/internal/config"
	"livermore/internal/exchange/wsadapter"
	"livermore/internal/logging"
	"livermore/internal/metrics"
	"livermore/internal/model"
	"livermore/internal/notifier"
	"livermore/internal/scheduler"
	"livermore/internal/store/sqlite"
)

func main() {
	os.Exit(run())
}

// run builds the process and blocks until shutdown, returning the process
// exit code: 0 on a clean shutdown, 1 on a lease conflict or other fatal
// startup condition.
func run() int {
	cfgPath := configPath()
	loader := config.NewLoader()
	cfg, err := loader.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "livermore: config: %v\n", err)
		return 1
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON})
	if err != nil {
		fmt.Fprintf(os.Stderr, "livermore: logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	a, m, err := build(cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	if m != nil {
		defer m.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		logger.Error("app run failed", zap.Error(err))
		return 1
	}

	logger.Info("livermore shut down cleanly")
	return 0
}

// configPath resolves the config file location: the first command-line
// argument if one is given, else configs/config.yaml beside the executable
// if that file exists, else a working-directory-relative configs/config.yaml
// for container deployments that don't preserve the binary's install layout.
func configPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "configs", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join("configs", "config.yaml")
}

// build constructs every collaborator and assembles the app.App. Redis,
// SQLite, and the metrics server are all live resources touched here; any
// failure at this stage is fatal and reported with model.ErrFatal.
func build(cfg *config.Config, logger *zap.Logger) (*app.App, *metrics.Metrics, error) {
	cacheSvc, err := rediscache.New(rediscache.Config{
		Addr:       cfg.GetRedisAddress(),
		DB:         cfg.Redis.DB,
		Password:   cfg.Redis.Password,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: redis connect: %v", model.ErrFatal, err)
	}

	sqlitePath := cfg.Store.SQLitePath
	if sqlitePath == "" {
		sqlitePath = "livermore.db"
	}
	alertStore, err := sqlite.New(sqlite.Config{Path: sqlitePath})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: sqlite open: %v", model.ErrFatal, err)
	}

	var notif notifier.Notifier
	if cfg.Notifier.WebhookURL != "" {
		notif = notifier.NewWebhookNotifier(cfg.Notifier.WebhookURL, logger)
	} else {
		notif = notifier.NewLogNotifier(logger)
	}

	adapter, err := buildAdapter(cfg.Exchange.Name, logger)
	if err != nil {
		return nil, nil, err
	}

	m := metrics.New(logger)
	m.Register()
	if err := m.Start(cfg.Monitoring.MetricsAddr); err != nil {
		return nil, nil, fmt.Errorf("%w: metrics server: %v", model.ErrFatal, err)
	}

	baseTF := model.Timeframe(cfg.Timeframes.Base)
	allTFs := append([]model.Timeframe{baseTF}, model.HigherTimeframes(baseTF)...)

	htfSource := scheduler.SourceAggregate
	if cfg.Timeframes.HigherTimeframeSource == "cache-read" {
		htfSource = scheduler.SourceCacheRead
	}

	reconnect := app.ReconnectConfig{
		InitialBackoff: config.ParseDuration(cfg.Reconnect.InitialBackoff, 0),
		MaxBackoff:     config.ParseDuration(cfg.Reconnect.MaxBackoff, 0),
		BackoffFactor:  cfg.Reconnect.BackoffFactor,
	}

	user := cfg.Identity.User
	if user == "" {
		user = "livermore"
	}

	a := app.New(app.Config{
		User:       user,
		Exchange:   cfg.Exchange.Name,
		ExchangeID: cfg.Identity.ExchangeID,
		IP:         cfg.Identity.IP,

		BaseTimeframe: baseTF,
		Symbols:       cfg.Symbols,
		AllTimeframes: allTFs,
		HTFSource:     htfSource,

		Cache:      cacheSvc,
		Adapter:    adapter,
		AlertStore: alertStore,
		Settings:   alertStore,
		Notifier:   notif,
		Renderer:   chart.Disabled{},
		Metrics:    m,
		Logger:     logger,

		Reconnect: reconnect,
	})

	return a, m, nil
}

// buildAdapter looks up the wsadapter.Config for the configured venue.
// Only Binance ships with this pipeline; additional venues register here
// the same way.
func buildAdapter(name string, logger *zap.Logger) (*wsadapter.Adapter, error) {
	switch name {
	case "", "binance":
		return wsadapter.New(wsadapter.BinanceConfig(), logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown exchange %q", model.ErrFatal, name)
	}
}
