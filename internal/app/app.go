// Package app wires components A-J plus a live exchange adapter into one
// supervised process: dependency-ordered startup and pause/resume, the
// exchange connection's own exponential-backoff reconnect loop, and the
// control.Handlers the command channel dispatches admin actions to.
// Grounded on internal/supervisor/supervisor.go's Worker/backoff/health-check
// shape, narrowed from "N independently supervised workers" to "one
// supervised exchange connection plus a fixed in-process pipeline" — this
// pipeline has exactly one long-running, failure-prone I/O boundary.
package app

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"livermore/internal/activitylog"
	"livermore/internal/aggregator"
	"livermore/internal/alerts"
	"livermore/internal/cache"
	"livermore/internal/cachekeys"
	"livermore/internal/chart"
	"livermore/internal/connstate"
	"livermore/internal/control"
	"livermore/internal/exchange"
	"livermore/internal/metrics"
	"livermore/internal/model"
	"livermore/internal/notifier"
	"livermore/internal/registry"
	"livermore/internal/scheduler"
	"livermore/internal/store"
)

// ReconnectConfig tunes the exchange connection's supervised restart loop,
// grounded on internal/supervisor/supervisor.go's WorkerConfig backoff
// fields.
type ReconnectConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

func (c ReconnectConfig) withDefaults() ReconnectConfig {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Minute
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2.0
	}
	return c
}

// Config bundles every collaborator and setting App needs. Callers (the
// cmd/livermore binary, via internal/config) are responsible for
// constructing the concrete cache/store/notifier/renderer/adapter
// implementations; App only wires them together.
type Config struct {
	User       string
	Exchange   string
	ExchangeID string
	IP         string

	BaseTimeframe model.Timeframe
	Symbols       []string
	AllTimeframes []model.Timeframe // base + every higher timeframe, for bias scope
	HTFSource     scheduler.HigherTimeframeSource

	Cache      cache.Service
	Adapter    exchange.Adapter
	AlertStore store.AlertStore
	Settings   store.SettingsStore
	Notifier   notifier.Notifier
	Renderer   chart.Renderer
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	Reconnect ReconnectConfig
	Now       func() int64 // current time in epoch ms; defaults to time.Now
}

// App is the supervised pipeline process for one exchange instance.
type App struct {
	cfg Config
	now func() int64

	cacheSvc cache.Service
	logger   *zap.Logger

	reg         *registry.Registry
	conn        *connstate.Machine
	aggr        *aggregator.Aggregator
	sched       *scheduler.Scheduler
	eval        *alerts.Evaluator
	activity    *activitylog.Log
	metricsReg  *metrics.Metrics
	adapter     exchange.Adapter

	mu       sync.RWMutex
	paused   bool
	symbols  map[string]struct{}
	wakeConn chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs every component (A-J) and wires their event hand-offs, but
// does not register the lease, connect the exchange, or start any
// goroutines — call Run for that.
func New(cfg Config) *App {
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().UnixMilli() }
	}
	cfg.Reconnect = cfg.Reconnect.withDefaults()
	logger := cfg.Logger.Named("app")

	reg := registry.New(cfg.ExchangeID, cfg.IP, cfg.Cache, logger)
	conn := connstate.New(reg, logger)
	aggr := aggregator.New(cfg.User, cfg.Exchange, cfg.Cache, logger)
	activity := activitylog.New(cfg.Exchange, cfg.Cache, logger)

	symbolConfigs := make([]scheduler.SymbolConfig, 0, len(cfg.Symbols))
	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbolConfigs = append(symbolConfigs, scheduler.SymbolConfig{Symbol: s, BaseTF: cfg.BaseTimeframe})
		symbols[s] = struct{}{}
	}
	sched := scheduler.New(cfg.User, cfg.Exchange, symbolConfigs, cfg.HTFSource, cfg.Cache, logger, cfg.Now())

	eval := alerts.New(alerts.Config{
		User:       cfg.User,
		Exchange:   cfg.Exchange,
		ExchangeID: cfg.ExchangeID,
		Timeframes: cfg.AllTimeframes,
		Cache:      cfg.Cache,
		AlertStore: cfg.AlertStore,
		Notifier:   cfg.Notifier,
		Renderer:   cfg.Renderer,
		Logger:     logger,
	})

	a := &App{
		cfg:        cfg,
		now:        cfg.Now,
		cacheSvc:   cfg.Cache,
		logger:     logger,
		reg:        reg,
		conn:       conn,
		aggr:       aggr,
		sched:      sched,
		eval:       eval,
		activity:   activity,
		metricsReg: cfg.Metrics,
		adapter:    cfg.Adapter,
		symbols:    symbols,
		wakeConn:   make(chan struct{}, 1),
	}

	aggr.OnCandleClose(func(scope cachekeys.Scope, candle model.Candle) {
		if a.cfg.Metrics != nil {
			a.cfg.Metrics.CandlesClosed.WithLabelValues(scope.Exchange, scope.Symbol, string(candle.Timeframe)).Inc()
		}
		sched.OnCandleClose(a.runCtx, scope.Symbol, candle)
	})

	sched.OnIndicatorComputed(func(scope cachekeys.Scope, v model.IndicatorValue) {
		if a.cfg.Metrics != nil {
			a.cfg.Metrics.IndicatorComputations.WithLabelValues(scope.Exchange, scope.Symbol, string(v.Timeframe), v.Params.Reason).Inc()
		}
		if !v.Valid() {
			return
		}
		eval.OnIndicator(a.runCtx, alerts.IndicatorEvent{
			Symbol:    scope.Symbol,
			Timeframe: v.Timeframe,
			MACDV:     v.Value.MACDV,
			Histogram: v.Value.Histogram,
			Timestamp: v.Timestamp,
		})
	})

	cfg.Adapter.OnTrade(func(t exchange.Trade) {
		a.aggr.OnTick(a.runCtx, t.Symbol, t.Price, t.EventTimeMs)
	})
	cfg.Adapter.OnTicker(func(t exchange.TickerUpdate) {
		a.eval.OnTicker(t.Symbol, t.Price)
		scope := cachekeys.Scope{User: cfg.User, Exchange: cfg.Exchange, Symbol: t.Symbol}
		ticker := model.Ticker{
			Symbol: t.Symbol, Price: t.Price, Change24h: t.Change24h, ChangePct24h: t.ChangePct24h,
			Volume24h: t.Volume24h, High24h: t.High24h, Low24h: t.Low24h, Timestamp: t.EventTimeMs,
		}
		if err := a.cacheSvc.SetTicker(a.runCtx, scope, ticker); err != nil {
			a.logger.Warn("ticker store write failed", zap.String("symbol", t.Symbol), zap.Error(err))
		}
		if err := a.cacheSvc.PublishTicker(a.runCtx, scope, ticker); err != nil {
			a.logger.Warn("ticker publish failed", zap.String("symbol", t.Symbol), zap.Error(err))
		}
	})

	return a
}

// Handlers builds the control.Handlers bundle for this App's command
// channel. Every handler is safe to call concurrently with the running
// pipeline.
func (a *App) Handlers() control.Handlers {
	return control.Handlers{
		Pause:          a.handlePause,
		Resume:         a.handleResume,
		ReloadSettings: a.handleReloadSettings,
		SwitchMode:     a.handleSwitchMode,
		ForceBackfill:  a.handleForceBackfill,
		ClearCache:     a.handleClearCache,
		AddSymbol:      a.handleAddSymbol,
		RemoveSymbol:   a.handleRemoveSymbol,
		BulkAddSymbols: a.handleBulkAddSymbols,
	}
}

// Run registers the lease, connects the exchange (under supervised
// reconnect), starts the control channel and heartbeat, and blocks until ctx
// is cancelled. On return the lease is released and the connection state is
// reset to idle.
func (a *App) Run(ctx context.Context) error {
	if err := a.reg.Register(ctx, a.now()); err != nil {
		return fmt.Errorf("app: register lease: %w", err)
	}
	a.reg.StartHeartbeat(ctx)
	defer a.reg.Deregister(context.Background())

	a.runCtx, a.runCancel = context.WithCancel(ctx)
	defer a.runCancel()

	identitySub := a.reg.InstanceIdentity(a.now())
	ctrl := control.New(identitySub, a.cacheSvc, a.Handlers(), a.logger, a.now)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := ctrl.Run(a.runCtx); err != nil {
			a.logger.Warn("control channel stopped", zap.Error(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.superviseConnection(a.runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.trimActivityLoop(a.runCtx)
	}()

	<-ctx.Done()
	a.runCancel()
	a.adapter.Disconnect()
	a.conn.ResetToIdle(context.Background(), a.now())
	a.wg.Wait()
	return nil
}

// superviseConnection drives the warming->active lifecycle and restarts the
// exchange connection with exponential backoff on failure, grounded on
// internal/supervisor/supervisor.go's runWorker/calculateBackoff pair. It
// loops for the process lifetime, parking in the paused wait whenever an
// admin pause command has fired, and re-connecting on resume.
func (a *App) superviseConnection(ctx context.Context) {
	retries := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if a.isPaused() {
			if !a.waitForWake(ctx) {
				return
			}
			continue
		}

		a.conn.Transition(ctx, model.StateStarting, a.now())
		if err := a.connectOnce(ctx); err != nil {
			a.logger.Warn("exchange connect failed", zap.Error(err))
			a.reg.RecordError(ctx, err.Error(), a.now())
			a.activity.Append(ctx, activitylog.EventError, a.now(), map[string]string{"message": err.Error()})
			a.conn.Transition(ctx, model.StateStopping, a.now())
			a.conn.Transition(ctx, model.StateStopped, a.now())

			retries++
			backoff := calculateBackoff(retries, a.cfg.Reconnect)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			case <-a.wakeConn:
			}
			continue
		}

		retries = 0
		a.conn.Transition(ctx, model.StateWarming, a.now())
		a.conn.Transition(ctx, model.StateActive, a.now())
		a.activity.Append(ctx, activitylog.EventStateTransition, a.now(), map[string]string{"to": string(model.StateActive)})

		// Block here until a pause command (or shutdown) asks this
		// connection to come back down; there is no independent
		// "unexpectedly dropped" detection path below the adapter boundary.
		if !a.waitForWake(ctx) {
			return
		}
		if !a.isPaused() {
			continue
		}
		a.adapter.Disconnect()
		a.conn.Transition(ctx, model.StateStopping, a.now())
		a.conn.Transition(ctx, model.StateStopped, a.now())
	}
}

// waitForWake blocks until ctx is cancelled (returns false) or a.wakeConn is
// signaled (returns true), e.g. by handlePause/handleResume.
func (a *App) waitForWake(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-a.wakeConn:
		return true
	}
}

func (a *App) wake() {
	select {
	case a.wakeConn <- struct{}{}:
	default:
	}
}

func (a *App) connectOnce(ctx context.Context) error {
	if err := a.adapter.Subscribe(ctx, a.currentSymbols()); err != nil {
		return fmt.Errorf("app: subscribe: %w", err)
	}
	return a.adapter.Connect(ctx)
}

// calculateBackoff mirrors internal/supervisor/supervisor.go's exponential
// ramp, capped at MaxBackoff.
func calculateBackoff(retries int, cfg ReconnectConfig) time.Duration {
	backoff := float64(cfg.InitialBackoff)
	for i := 0; i < retries-1; i++ {
		backoff *= cfg.BackoffFactor
		if backoff > float64(cfg.MaxBackoff) {
			return cfg.MaxBackoff
		}
	}
	return time.Duration(math.Min(backoff, float64(cfg.MaxBackoff)))
}

func (a *App) trimActivityLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.activity.Trim(ctx, a.now())
		}
	}
}

func (a *App) isPaused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

func (a *App) currentSymbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.symbols))
	for s := range a.symbols {
		out = append(out, s)
	}
	return out
}

// handlePause implements the downstream-to-upstream pause ordering:
// the connection supervisor wakes, disconnects the exchange
// adapter, and parks the connection state; the indicator scheduler and alert
// evaluator are left wired — they simply stop receiving candle closes once
// the adapter is down.
func (a *App) handlePause(ctx context.Context) (map[string]any, error) {
	a.mu.Lock()
	a.paused = true
	a.mu.Unlock()
	a.wake()
	a.activity.Append(ctx, activitylog.EventAdminAction, a.now(), map[string]string{"action": "pause"})
	return nil, nil
}

// handleResume reverses pause: the supervised connection loop (already
// running) picks the un-paused state up as soon as it wakes and reconnects.
func (a *App) handleResume(ctx context.Context) (map[string]any, error) {
	a.mu.Lock()
	a.paused = false
	a.mu.Unlock()
	a.wake()
	a.activity.Append(ctx, activitylog.EventAdminAction, a.now(), map[string]string{"action": "resume"})
	return nil, nil
}

func (a *App) handleReloadSettings(ctx context.Context) (map[string]any, error) {
	if a.cfg.Settings == nil {
		return nil, fmt.Errorf("app: no settings store configured")
	}
	identity := a.cfg.ExchangeID
	s, err := a.cfg.Settings.GetSettings(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("app: reload settings: %w", err)
	}
	a.mu.Lock()
	a.symbols = make(map[string]struct{}, len(s.MonitoredSymbols))
	for _, sym := range s.MonitoredSymbols {
		a.symbols[sym] = struct{}{}
	}
	a.mu.Unlock()
	if err := a.adapter.Subscribe(ctx, s.MonitoredSymbols); err != nil {
		return nil, fmt.Errorf("app: reload settings: resubscribe: %w", err)
	}
	return map[string]any{"symbols": s.MonitoredSymbols, "mode": s.Mode}, nil
}

func (a *App) handleSwitchMode(ctx context.Context, mode string) (map[string]any, error) {
	if a.cfg.Settings == nil {
		return nil, fmt.Errorf("app: no settings store configured")
	}
	identity := a.cfg.ExchangeID
	current, err := a.cfg.Settings.GetSettings(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("app: switch mode: %w", err)
	}
	current.Mode = mode
	if err := a.cfg.Settings.PutSettings(ctx, identity, current); err != nil {
		return nil, fmt.Errorf("app: switch mode: %w", err)
	}
	return map[string]any{"mode": mode}, nil
}

func (a *App) handleForceBackfill(ctx context.Context, symbol string, timeframes []string) (map[string]any, error) {
	scope := cachekeys.Scope{User: a.cfg.User, Exchange: a.cfg.Exchange, Symbol: symbol}
	for _, tf := range timeframes {
		bars, err := a.cacheSvc.GetRecentCandles(ctx, scope, model.Timeframe(tf), scheduler.FetchDepth)
		if err != nil || len(bars) == 0 {
			continue
		}
		a.sched.OnCandleClose(ctx, symbol, bars[len(bars)-1])
	}
	return map[string]any{"symbol": symbol, "timeframes": timeframes}, nil
}

func (a *App) handleClearCache(ctx context.Context, scope model.ClearCacheScope, symbol, tf string) (map[string]any, error) {
	var pattern string
	switch scope {
	case model.ClearCacheAll:
		pattern = fmt.Sprintf("candles:%s:%s:*", a.cfg.User, a.cfg.Exchange)
	case model.ClearCacheSymbol:
		pattern = fmt.Sprintf("candles:%s:%s:%s:*", a.cfg.User, a.cfg.Exchange, symbol)
	case model.ClearCacheTimeframe:
		pattern = fmt.Sprintf("candles:%s:%s:%s:%s", a.cfg.User, a.cfg.Exchange, symbol, tf)
	default:
		return nil, fmt.Errorf("app: clear-cache: unknown scope %q", scope)
	}
	keys, err := a.cacheSvc.ScanKeys(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("app: clear-cache: scan: %w", err)
	}
	if len(keys) > 0 {
		if err := a.cacheSvc.Delete(ctx, keys...); err != nil {
			return nil, fmt.Errorf("app: clear-cache: delete: %w", err)
		}
	}
	return map[string]any{"cleared": len(keys)}, nil
}

func (a *App) handleAddSymbol(ctx context.Context, symbol string) (map[string]any, error) {
	a.mu.Lock()
	a.symbols[symbol] = struct{}{}
	a.mu.Unlock()
	a.sched.AddSymbol(symbol, a.cfg.BaseTimeframe, a.now())
	if err := a.adapter.Subscribe(ctx, a.currentSymbols()); err != nil {
		return nil, fmt.Errorf("app: add-symbol: %w", err)
	}
	return map[string]any{"symbol": symbol}, nil
}

func (a *App) handleRemoveSymbol(ctx context.Context, symbol string) (map[string]any, error) {
	a.mu.Lock()
	delete(a.symbols, symbol)
	a.mu.Unlock()
	a.sched.RemoveSymbol(symbol)
	if err := a.adapter.Subscribe(ctx, a.currentSymbols()); err != nil {
		return nil, fmt.Errorf("app: remove-symbol: %w", err)
	}
	return map[string]any{"symbol": symbol}, nil
}

func (a *App) handleBulkAddSymbols(ctx context.Context, symbols []string) (map[string]any, error) {
	a.mu.Lock()
	for _, s := range symbols {
		a.symbols[s] = struct{}{}
	}
	a.mu.Unlock()
	for _, s := range symbols {
		a.sched.AddSymbol(s, a.cfg.BaseTimeframe, a.now())
	}
	if err := a.adapter.Subscribe(ctx, a.currentSymbols()); err != nil {
		return nil, fmt.Errorf("app: bulk-add-symbols: %w", err)
	}
	return map[string]any{"symbols": symbols}, nil
}
