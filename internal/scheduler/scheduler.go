// Package scheduler converts candle-close events into up-to-date MACD-V
// values at multiple timeframes and publishes them, tracking each
// (symbol, timeframe) pair's last-processed boundary and obtaining
// higher-timeframe bars either by cache read or in-memory aggregation.
package scheduler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"livermore/internal/cache"
	"livermore/internal/cachekeys"
	"livermore/internal/indicator"
	"livermore/internal/model"
)

// ReadyBars is the scheduler-level readiness gate: fewer cached bars than
// this and the (symbol, tf) is skipped for this cycle.
const ReadyBars = 60

// FetchDepth is how many recent bars the scheduler reads per computation,
// comfortably covering readiness plus indicator warm-up.
const FetchDepth = 200

// HigherTimeframeSource selects how a higher timeframe's bars are obtained
// once its boundary advances: either read from cache (populated by an
// independent backfill collaborator) or aggregated in-memory from base
// bars. Both must be implementable; the choice is a
// per-deployment configuration, not a runtime decision.
type HigherTimeframeSource int

const (
	SourceCacheRead HigherTimeframeSource = iota
	SourceAggregate
)

// SymbolConfig names one monitored symbol and its base timeframe.
type SymbolConfig struct {
	Symbol       string
	BaseTF       model.Timeframe
}

// IndicatorListener is invoked, in addition to the cache write+publish,
// whenever the scheduler recomputes a (symbol, timeframe) indicator value.
// The alert evaluator receives values through this hook rather than through
// the pub/sub channel.
type IndicatorListener func(scope cachekeys.Scope, v model.IndicatorValue)

// Scheduler recomputes and publishes indicators on every base-timeframe
// candle close.
type Scheduler struct {
	user     string
	exchange string
	cache    cache.Service
	logger   *zap.Logger
	source   HigherTimeframeSource

	mu              sync.Mutex
	symbols         map[string]SymbolConfig
	lastBoundary    map[string]int64 // "symbol:tf" -> last processed boundary ms
	listeners       []IndicatorListener
}

// OnIndicatorComputed registers a listener invoked after every recompute
// that reached the engine (at least ReadyBars cached bars), once the cache
// write and publish have been attempted, whether or not they succeeded.
func (s *Scheduler) OnIndicatorComputed(l IndicatorListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// New builds a Scheduler for the given symbol/base-timeframe configs.
// The last-processed-boundary index is seeded to the current boundary for
// every (symbol, higher tf) pair so that the first candle-close after
// startup does not trigger a duplicate recompute.
func New(user, exchange string, configs []SymbolConfig, source HigherTimeframeSource, store cache.Service, logger *zap.Logger, nowMs int64) *Scheduler {
	s := &Scheduler{
		user:         user,
		exchange:     exchange,
		cache:        store,
		logger:       logger.Named("scheduler"),
		source:       source,
		symbols:      make(map[string]SymbolConfig, len(configs)),
		lastBoundary: make(map[string]int64),
	}
	for _, cfg := range configs {
		s.symbols[cfg.Symbol] = cfg
		for _, tf := range model.HigherTimeframes(cfg.BaseTF) {
			s.lastBoundary[boundaryKey(cfg.Symbol, tf)] = model.Boundary(nowMs, tf)
		}
	}
	return s
}

func boundaryKey(symbol string, tf model.Timeframe) string {
	return symbol + ":" + string(tf)
}

// AddSymbol starts monitoring symbol at baseTF, seeding its higher-timeframe
// boundaries the same way New does at startup.
func (s *Scheduler) AddSymbol(symbol string, baseTF model.Timeframe, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[symbol] = SymbolConfig{Symbol: symbol, BaseTF: baseTF}
	for _, tf := range model.HigherTimeframes(baseTF) {
		s.lastBoundary[boundaryKey(symbol, tf)] = model.Boundary(nowMs, tf)
	}
}

// RemoveSymbol stops monitoring symbol; it leaves any already-cached
// candles/indicators in place for later inspection.
func (s *Scheduler) RemoveSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.symbols, symbol)
}

// Symbols returns the currently monitored symbols.
func (s *Scheduler) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// SubscribePattern returns the wildcard candle-close pattern this scheduler
// should subscribe to for the given base timeframe.
func (s *Scheduler) SubscribePattern(baseTF model.Timeframe) string {
	return cachekeys.CandleClosePattern(s.user, s.exchange, baseTF)
}

// OnCandleClose handles one base-timeframe candle-close event. It recomputes
// the base-tf indicator, then advances and recomputes any higher timeframe
// whose boundary the new candle has crossed. Any single (symbol, tf)
// failure is isolated: logged and the rest proceed.
func (s *Scheduler) OnCandleClose(ctx context.Context, symbol string, candle model.Candle) {
	s.mu.Lock()
	cfg, monitored := s.symbols[symbol]
	s.mu.Unlock()
	if !monitored {
		return
	}

	scope := cachekeys.Scope{User: s.user, Exchange: s.exchange, Symbol: symbol}

	s.recompute(ctx, scope, cfg.BaseTF)

	for _, tf := range model.HigherTimeframes(cfg.BaseTF) {
		currentBoundary := model.Boundary(candle.Timestamp, tf)

		s.mu.Lock()
		key := boundaryKey(symbol, tf)
		last := s.lastBoundary[key]
		advanced := currentBoundary > last
		if advanced {
			s.lastBoundary[key] = currentBoundary
		}
		s.mu.Unlock()

		if !advanced {
			continue
		}

		if err := s.ensureHigherTFBars(ctx, scope, cfg.BaseTF, tf); err != nil {
			s.logger.Debug("higher timeframe aggregation skipped",
				zap.String("symbol", symbol), zap.String("tf", string(tf)), zap.Error(err))
			continue
		}
		s.recompute(ctx, scope, tf)
	}
}

// ensureHigherTFBars makes sure the higher timeframe's candle store has a
// bar for the most recently crossed boundary, either by trusting an
// independent backfill collaborator (SourceCacheRead) or by aggregating
// base-tf bars in memory and writing the result (SourceAggregate).
func (s *Scheduler) ensureHigherTFBars(ctx context.Context, scope cachekeys.Scope, baseTF, higherTF model.Timeframe) error {
	if s.source == SourceCacheRead {
		return nil // populated independently; nothing for the scheduler to do
	}

	step := higherTF.Millis()
	baseStep := baseTF.Millis()
	if step == 0 || baseStep == 0 {
		return nil
	}
	barsPerBucket := int(step / baseStep)
	if barsPerBucket < 1 {
		barsPerBucket = 1
	}

	baseBars, err := s.cache.GetRecentCandles(ctx, scope, baseTF, barsPerBucket*2)
	if err != nil {
		return err
	}
	if len(baseBars) == 0 {
		return nil
	}

	latestBucket := model.Boundary(baseBars[len(baseBars)-1].Timestamp, higherTF)
	var bucketBars []model.Candle
	for _, b := range baseBars {
		if model.Boundary(b.Timestamp, higherTF) == latestBucket {
			bucketBars = append(bucketBars, b)
		}
	}
	if len(bucketBars) == 0 {
		return nil
	}

	aggregated := model.AggregateCandles(latestBucket, higherTF, bucketBars)
	return s.cache.AddCandles(ctx, scope, higherTF, []model.Candle{aggregated})
}

// recompute reads cached bars for (scope, tf), runs the indicator engine,
// and publishes the result. A fetch/compute failure for this (symbol, tf)
// is isolated — logged and skipped. The scheduler never
// issues a REST call on this path.
func (s *Scheduler) recompute(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe) {
	bars, err := s.cache.GetRecentCandles(ctx, scope, tf, FetchDepth)
	if err != nil {
		s.logger.Warn("recompute: fetch failed", zap.String("symbol", scope.Symbol), zap.String("tf", string(tf)), zap.Error(err))
		return
	}
	if len(bars) < ReadyBars {
		return
	}

	result := indicator.Compute(bars, tf)
	latest := bars[len(bars)-1]

	value := model.IndicatorValue{
		Timestamp: latest.Timestamp,
		Type:      model.IndicatorTypeMACDV,
		Symbol:    scope.Symbol,
		Timeframe: tf,
		Value:     result.Values,
		Params:    result.Params,
	}

	// Both writes run even if one errors; the scheduler logs and does not
	// retry.
	if err := s.cache.SetIndicator(ctx, scope, value); err != nil {
		s.logger.Warn("recompute: set indicator failed", zap.String("symbol", scope.Symbol), zap.String("tf", string(tf)), zap.Error(err))
	}
	if err := s.cache.PublishIndicator(ctx, scope, value); err != nil {
		s.logger.Warn("recompute: publish indicator failed", zap.String("symbol", scope.Symbol), zap.String("tf", string(tf)), zap.Error(err))
	}

	s.mu.Lock()
	listeners := append([]IndicatorListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l(scope, value)
	}
}
