// Package aggregator folds streaming ticker/trade events into per-symbol
// 1-minute candles, using a rollover-on-next-event builder and a
// write-then-publish emit sequence on every close.
package aggregator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"livermore/internal/cache"
	"livermore/internal/cachekeys"
	"livermore/internal/model"
)

// Listener is invoked, in addition to the cache write+publish, whenever a
// bar closes.
type Listener func(scope cachekeys.Scope, candle model.Candle)

type openBar struct {
	timestamp int64
	open      float64
	high      float64
	low       float64
	close     float64
	isClosed  bool
}

// Aggregator maintains one open 1-minute bar per symbol.
type Aggregator struct {
	user     string
	exchange string
	cache    cache.Service
	logger   *zap.Logger

	mu        sync.Mutex
	bars      map[string]*openBar
	listeners []Listener
}

// New creates an Aggregator scoped to one (user, exchange) pair.
func New(user, exchange string, store cache.Service, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		user:     user,
		exchange: exchange,
		cache:    store,
		logger:   logger.Named("aggregator"),
		bars:     make(map[string]*openBar),
	}
}

// OnCandleClose registers a listener invoked synchronously on every bar
// close, after the cache write and publish.
func (a *Aggregator) OnCandleClose(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// OnTick folds one ticker event into the symbol's open bar, emitting the
// previous bar if eventTime crosses a minute boundary.
func (a *Aggregator) OnTick(ctx context.Context, symbol string, price float64, eventTimeMs int64) {
	bucket := (eventTimeMs / 60_000) * 60_000

	a.mu.Lock()
	bar, exists := a.bars[symbol]
	var toEmit *model.Candle
	if !exists || bucket > bar.timestamp {
		if exists && !bar.isClosed {
			bar.isClosed = true
			closed := barToCandle(symbol, bar)
			toEmit = &closed
		}
		bar = &openBar{timestamp: bucket, open: price, high: price, low: price, close: price}
		a.bars[symbol] = bar
	} else {
		if price > bar.high {
			bar.high = price
		}
		if price < bar.low {
			bar.low = price
		}
		bar.close = price // tie-break on identical eventTime: last write wins
	}
	a.mu.Unlock()

	if toEmit != nil {
		a.emit(ctx, symbol, *toEmit)
	}
}

func barToCandle(symbol string, bar *openBar) model.Candle {
	return model.Candle{
		Timestamp: bar.timestamp,
		Open:      bar.open,
		High:      bar.high,
		Low:       bar.low,
		Close:     bar.close,
		Symbol:    symbol,
		Timeframe: model.TF1m,
	}
}

func (a *Aggregator) emit(ctx context.Context, symbol string, candle model.Candle) {
	scope := cachekeys.Scope{User: a.user, Exchange: a.exchange, Symbol: symbol}

	// A store/publish error is logged; the in-memory bar is never rolled
	// back — the bar has already been replaced by the new
	// open bar by the time we get here.
	if err := a.cache.AddCandles(ctx, scope, model.TF1m, []model.Candle{candle}); err != nil {
		a.logger.Warn("candle store write failed", zap.String("symbol", symbol), zap.Error(err))
	}
	if err := a.cache.PublishCandleClose(ctx, scope, model.TF1m, candle); err != nil {
		a.logger.Warn("candle publish failed", zap.String("symbol", symbol), zap.Error(err))
	}

	a.mu.Lock()
	listeners := append([]Listener(nil), a.listeners...)
	a.mu.Unlock()
	for _, l := range listeners {
		l(scope, candle)
	}
}

// Flush force-closes the open bar for symbol, if any, without waiting for
// the next tick to cross a boundary. Used on graceful shutdown.
func (a *Aggregator) Flush(ctx context.Context, symbol string) {
	a.mu.Lock()
	bar, exists := a.bars[symbol]
	if !exists || bar.isClosed {
		a.mu.Unlock()
		return
	}
	bar.isClosed = true
	candle := barToCandle(symbol, bar)
	a.mu.Unlock()

	a.emit(ctx, symbol, candle)
}
