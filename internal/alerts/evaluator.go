// Package alerts implements the MACD-V alert state machine: level-crossing
// and reversal detection, cooldowns, multi-timeframe bias scoring, and the
// notify/persist/announce hand-off. State lives in maps keyed by a
// composite string, with every mutation guarded before any notifier or
// persistence await.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"livermore/internal/cache"
	"livermore/internal/cachekeys"
	"livermore/internal/chart"
	"livermore/internal/model"
	"livermore/internal/notifier"
	"livermore/internal/store"
)

const (
	CooldownMS           = 300_000
	OversoldBufferPct    = 0.05
	OverboughtBufferPct  = 0.03
	ChartTimeout         = 3 * time.Second
)

// OversoldLevels and OverboughtLevels are ordered least extreme first and
// checked in that order, keeping the last match, so the single deepest
// crossed level wins.
var (
	OversoldLevels    = []int{-150, -200, -250, -300, -350, -400}
	OverboughtLevels  = []int{150, 200, 250, 300, 350, 400}
)

// IndicatorEvent is what the scheduler's publication hands to the evaluator:
// a symbol/timeframe MACD-V + histogram sample.
type IndicatorEvent struct {
	Symbol    string
	Timeframe model.Timeframe
	MACDV     float64
	Histogram float64
	Timestamp int64
}

// Evaluator runs the alert state machine for one exchange scope.
type Evaluator struct {
	user       string
	exchange   string
	exchangeID string
	timeframes []model.Timeframe // every configured timeframe, for bias context
	cacheSvc   cache.Service
	alertStore store.AlertStore
	notify     notifier.Notifier
	renderer   chart.Renderer
	logger     *zap.Logger
	now        func() time.Time

	mu               sync.Mutex
	previousMacdV    map[string]float64
	alertedLevels    map[string]int64
	reversalCooldown map[string]int64
	inReversalState  map[string]bool
	currentPrices    map[string]float64
	lastTriggerLabel map[string]string
}

// Config bundles an Evaluator's collaborators.
type Config struct {
	User, Exchange, ExchangeID string
	Timeframes                 []model.Timeframe
	Cache                      cache.Service
	AlertStore                 store.AlertStore
	Notifier                   notifier.Notifier
	Renderer                   chart.Renderer
	Logger                     *zap.Logger
}

func New(cfg Config) *Evaluator {
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = chart.Disabled{}
	}
	return &Evaluator{
		user:             cfg.User,
		exchange:         cfg.Exchange,
		exchangeID:       cfg.ExchangeID,
		timeframes:       cfg.Timeframes,
		cacheSvc:         cfg.Cache,
		alertStore:       cfg.AlertStore,
		notify:           cfg.Notifier,
		renderer:         renderer,
		logger:           cfg.Logger.Named("alerts"),
		now:              time.Now,
		previousMacdV:    make(map[string]float64),
		alertedLevels:    make(map[string]int64),
		reversalCooldown: make(map[string]int64),
		inReversalState:  make(map[string]bool),
		currentPrices:    make(map[string]float64),
		lastTriggerLabel: make(map[string]string),
	}
}

func key(symbol string, tf model.Timeframe) string {
	return symbol + ":" + string(tf)
}

// OnTicker records the latest price for a symbol.
func (e *Evaluator) OnTicker(symbol string, price float64) {
	e.mu.Lock()
	e.currentPrices[symbol] = price
	e.mu.Unlock()
}

// OnIndicator runs one indicator sample through the state machine. It may
// emit zero, one, or (rarely, level then nothing else — reversal is
// suppressed on an entry tick) exactly one alert.
func (e *Evaluator) OnIndicator(ctx context.Context, ev IndicatorEvent) {
	if isNaN(ev.MACDV) {
		return
	}
	k := key(ev.Symbol, ev.Timeframe)

	e.mu.Lock()
	prev, hadPrev := e.previousMacdV[k]
	e.previousMacdV[k] = ev.MACDV
	e.mu.Unlock()

	if !hadPrev {
		return
	}

	if trigger, ok := e.checkLevelCross(k, prev, ev.MACDV); ok {
		e.emit(ctx, k, ev, trigger)
		return
	}
	if trigger, ok := e.checkReversal(k, prev, ev.MACDV, ev.Histogram); ok {
		e.emit(ctx, k, ev, trigger)
	}
}

// checkLevelCross finds the deepest oversold level crossed downward, or
// the highest overbought level crossed upward, subject to per-level
// cooldown. Mutations happen here, before any notifier/persistence await.
func (e *Evaluator) checkLevelCross(k string, prev, cur float64) (model.AlertTrigger, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	nowMs := e.now().UnixMilli()

	// OversoldLevels is ordered least-deep to most-deep; keeping the last
	// match during the scan yields the deepest level crossed this tick.
	deepest, crossedDown := -1, false
	for _, level := range OversoldLevels {
		if prev >= float64(level) && cur < float64(level) {
			deepest = level
			crossedDown = true
		}
	}
	if crossedDown {
		cooldownKey := fmt.Sprintf("%s:%d", k, deepest)
		if last, ok := e.alertedLevels[cooldownKey]; !ok || nowMs-last >= CooldownMS {
			e.alertedLevels[cooldownKey] = nowMs
			delete(e.inReversalState, k)
			return model.AlertTrigger{Kind: model.AlertTriggerLevelCross, Level: deepest, Direction: "down"}, true
		}
	}

	highest, crossedUp := -1, false
	for _, level := range OverboughtLevels {
		if prev <= float64(level) && cur > float64(level) {
			highest = level
			crossedUp = true
		}
	}
	if crossedUp {
		cooldownKey := fmt.Sprintf("%s:%d", k, highest)
		if last, ok := e.alertedLevels[cooldownKey]; !ok || nowMs-last >= CooldownMS {
			e.alertedLevels[cooldownKey] = nowMs
			delete(e.inReversalState, k)
			return model.AlertTrigger{Kind: model.AlertTriggerLevelCross, Level: highest, Direction: "up"}, true
		}
	}

	return model.AlertTrigger{}, false
}

// checkReversal fires when both prev and cur are already in the extreme
// zone (suppressing a same-tick entry and reversal) and the histogram has
// turned back past a buffer scaled to the current MACD-V magnitude.
func (e *Evaluator) checkReversal(k string, prev, cur, histogram float64) (model.AlertTrigger, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	nowMs := e.now().UnixMilli()
	cooldownKey := k + ":reversal"

	if cur < -150 && prev < -150 {
		buffer := absF(cur) * OversoldBufferPct
		if histogram > buffer && !e.inReversalState[k] {
			if last, ok := e.reversalCooldown[cooldownKey]; !ok || nowMs-last >= CooldownMS {
				e.reversalCooldown[cooldownKey] = nowMs
				e.inReversalState[k] = true
				return model.AlertTrigger{Kind: model.AlertTriggerReversal, Zone: "oversold"}, true
			}
		}
		return model.AlertTrigger{}, false
	}

	if cur > 150 && prev > 150 {
		buffer := absF(cur) * OverboughtBufferPct
		if histogram < -buffer && !e.inReversalState[k] {
			if last, ok := e.reversalCooldown[cooldownKey]; !ok || nowMs-last >= CooldownMS {
				e.reversalCooldown[cooldownKey] = nowMs
				e.inReversalState[k] = true
				return model.AlertTrigger{Kind: model.AlertTriggerReversal, Zone: "overbought"}, true
			}
		}
	}

	return model.AlertTrigger{}, false
}

// emit gathers multi-timeframe bias context, requests a chart, notifies,
// persists, and cross-exchange-announces one triggered alert. Failures at
// any hand-off step are recorded on the record, never escalated.
func (e *Evaluator) emit(ctx context.Context, k string, ev IndicatorEvent, trigger model.AlertTrigger) {
	bias := e.computeBias(ctx, ev.Symbol)

	e.mu.Lock()
	price := e.currentPrices[ev.Symbol]
	previousLabel := e.lastTriggerLabel[k]
	e.lastTriggerLabel[k] = trigger.Label()
	e.mu.Unlock()

	chartCtx, cancel := context.WithTimeout(ctx, ChartTimeout)
	chartURL, chartErr := e.renderer.Render(chartCtx, ev.Symbol, ev.Timeframe, nil)
	cancel()
	chartGenerated := chartErr == nil && chartURL != ""

	record := model.AlertRecord{
		ExchangeID:    e.exchangeID,
		Symbol:        ev.Symbol,
		Timeframe:     ev.Timeframe,
		AlertType:     model.AlertTypeMACDV,
		TriggeredAt:   ev.Timestamp,
		Price:         price,
		TriggerValue:  ev.MACDV,
		TriggerLabel:  trigger.Label(),
		PreviousLabel: previousLabel,
		Details: map[string]any{
			"bias":      string(bias),
			"histogram": ev.Histogram,
		},
		ChartGenerated: chartGenerated,
	}

	payload := notifier.Payload{
		Symbol:       ev.Symbol,
		Timeframe:    ev.Timeframe,
		Trigger:      trigger,
		TriggerValue: ev.MACDV,
		Price:        price,
		Bias:         bias,
		ChartURL:     chartURL,
	}
	if err := e.notify.Send(ctx, payload); err != nil {
		record.NotificationError = err.Error()
	} else {
		record.NotificationSent = true
	}

	if _, err := e.alertStore.InsertAlert(ctx, record); err != nil {
		e.logger.Warn("persist alert failed", zap.String("symbol", ev.Symbol), zap.Error(err))
	}

	pubsubPayload := model.AlertPubSubPayload{
		Symbol:             ev.Symbol,
		AlertType:          model.AlertTypeMACDV,
		Timeframe:          ev.Timeframe,
		Price:              price,
		TriggerValue:       ev.MACDV,
		SignalDelta:        ev.Histogram,
		TriggeredAt:        time.UnixMilli(ev.Timestamp).UTC().Format(time.RFC3339Nano),
		SourceExchangeID:   e.exchangeID,
		SourceExchangeName: e.exchange,
		TriggerLabel:       trigger.Label(),
	}
	if err := e.cacheSvc.PublishAlert(ctx, e.exchange, pubsubPayload); err != nil {
		e.logger.Warn("publish alert failed", zap.String("symbol", ev.Symbol), zap.Error(err))
	}
}

// computeBias gathers this symbol's latest stage across every configured
// timeframe and scores bullish vs bearish
func (e *Evaluator) computeBias(ctx context.Context, symbol string) model.Bias {
	scope := cachekeys.Scope{User: e.user, Exchange: e.exchange, Symbol: symbol}
	stageByTF := make(map[model.Timeframe]model.Stage, len(e.timeframes))
	for _, tf := range e.timeframes {
		v, err := e.cacheSvc.GetIndicator(ctx, scope, tf, model.IndicatorTypeMACDV)
		if err != nil || !v.Params.Seeded {
			continue
		}
		stageByTF[tf] = v.Params.Stage
	}
	return model.ClassifyBias(stageByTF)
}

func isNaN(f float64) bool { return f != f }

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
