// Package cachetest implements an in-memory cache.Service for unit tests,
// so every subsystem built against the cache boundary can be exercised
// without a live Redis instance.
package cachetest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"livermore/internal/cache"
	"livermore/internal/cachekeys"
	"livermore/internal/model"
)

// Fake is a single-process, mutex-guarded cache.Service.
type Fake struct {
	mu sync.Mutex

	candles    map[string][]model.Candle
	indicators map[string]model.IndicatorValue
	tickers    map[string]model.Ticker
	kv         map[string]kvEntry
	queues     map[string]map[string]float64
	streams    map[string][]streamEntry

	subs []subscriber
}

type kvEntry struct {
	value any
	ttl   time.Duration
}

type streamEntry struct {
	id     int64
	fields map[string]string
}

type subscriber struct {
	patterns []string
	ch       chan cache.Message
}

func New() *Fake {
	return &Fake{
		candles:    make(map[string][]model.Candle),
		indicators: make(map[string]model.IndicatorValue),
		tickers:    make(map[string]model.Ticker),
		kv:         make(map[string]kvEntry),
		queues:     make(map[string]map[string]float64),
		streams:    make(map[string][]streamEntry),
	}
}

func (f *Fake) Close() error { return nil }

func (f *Fake) AddCandles(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, candles []model.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := cachekeys.Candles(scope, tf)
	byTS := make(map[int64]model.Candle)
	for _, c := range f.candles[key] {
		byTS[c.Timestamp] = c
	}
	for _, c := range candles {
		byTS[c.Timestamp] = c
	}
	merged := make([]model.Candle, 0, len(byTS))
	for _, c := range byTS {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	f.candles[key] = merged
	return nil
}

func (f *Fake) GetRecentCandles(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, count int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.candles[cachekeys.Candles(scope, tf)]
	if len(all) <= count {
		out := make([]model.Candle, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]model.Candle, count)
	copy(out, all[len(all)-count:])
	return out, nil
}

func (f *Fake) GetLatestCandle(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe) (model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.candles[cachekeys.Candles(scope, tf)]
	if len(all) == 0 {
		return model.Candle{}, cache.ErrNotFound
	}
	return all[len(all)-1], nil
}

func (f *Fake) SetIndicator(ctx context.Context, scope cachekeys.Scope, v model.IndicatorValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indicators[cachekeys.Indicator(scope, v.Timeframe, v.Type)] = v
	return nil
}

func (f *Fake) GetIndicator(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, indType string) (model.IndicatorValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.indicators[cachekeys.Indicator(scope, tf, indType)]
	if !ok {
		return model.IndicatorValue{}, cache.ErrNotFound
	}
	return v, nil
}

func (f *Fake) GetIndicatorsBulk(ctx context.Context, user, exchange string, reqs []cache.IndicatorRequest) (map[string]model.IndicatorValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]model.IndicatorValue, len(reqs))
	for _, r := range reqs {
		scope := cachekeys.Scope{User: user, Exchange: exchange, Symbol: r.Symbol}
		if v, ok := f.indicators[cachekeys.Indicator(scope, r.Timeframe, r.Type)]; ok {
			out[r.Symbol+":"+string(r.Timeframe)] = v
		}
	}
	return out, nil
}

func (f *Fake) SetTicker(ctx context.Context, scope cachekeys.Scope, t model.Ticker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers[cachekeys.Ticker(scope)] = t
	return nil
}

func (f *Fake) GetTicker(ctx context.Context, scope cachekeys.Scope) (model.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickers[cachekeys.Ticker(scope)]
	if !ok {
		return model.Ticker{}, cache.ErrNotFound
	}
	return t, nil
}

func (f *Fake) dispatch(channel string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		for _, p := range s.patterns {
			if matchPattern(p, channel) {
				select {
				case s.ch <- cache.Message{Channel: channel, Payload: raw}:
				default:
				}
				break
			}
		}
	}
	return nil
}

func matchPattern(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

func (f *Fake) PublishCandleClose(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, c model.Candle) error {
	return f.dispatch(cachekeys.CandleCloseChannel(scope, tf), c)
}

func (f *Fake) PublishIndicator(ctx context.Context, scope cachekeys.Scope, v model.IndicatorValue) error {
	return f.dispatch(cachekeys.IndicatorChannel(scope, v.Timeframe, v.Type), v)
}

func (f *Fake) PublishTicker(ctx context.Context, scope cachekeys.Scope, t model.Ticker) error {
	return f.dispatch(cachekeys.TickerChannel(scope), t)
}

func (f *Fake) PublishAlert(ctx context.Context, exchange string, payload model.AlertPubSubPayload) error {
	return f.dispatch(cachekeys.AlertChannel(exchange), payload)
}

func (f *Fake) Publish(ctx context.Context, channel string, payload any) error {
	return f.dispatch(channel, payload)
}

func (f *Fake) Subscribe(ctx context.Context, patterns []string) (<-chan cache.Message, func() error, error) {
	ch := make(chan cache.Message, 64)
	f.mu.Lock()
	f.subs = append(f.subs, subscriber{patterns: patterns, ch: ch})
	f.mu.Unlock()
	return ch, func() error { close(ch); return nil }, nil
}

func (f *Fake) Set(ctx context.Context, key string, value any, mode cache.TTLMode, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.kv[key]
	switch mode {
	case cache.CreateOnly:
		if exists {
			return cache.ErrPreconditionFailed
		}
	case cache.ReplaceOnly:
		if !exists {
			return cache.ErrPreconditionFailed
		}
	case cache.KeepExistingTTL:
		if exists {
			ttl = f.kv[key].ttl
		}
	}
	f.kv[key] = kvEntry{value: value, ttl: ttl}
	return nil
}

func (f *Fake) Get(ctx context.Context, key string, dest any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.kv[key]
	if !ok {
		return cache.ErrNotFound
	}
	raw, err := json.Marshal(entry.value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (f *Fake) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.kv, k)
	}
	return nil
}

func (f *Fake) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.kv {
		if matchPattern(pattern, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *Fake) TTL(ctx context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.kv[key]
	if !ok {
		return 0, cache.ErrNotFound
	}
	return entry.ttl, nil
}

func (f *Fake) Push(ctx context.Context, queue string, score float64, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queues[queue] == nil {
		f.queues[queue] = make(map[string]float64)
	}
	f.queues[queue][member] = score
	return nil
}

func (f *Fake) PopLowest(ctx context.Context, queue string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.queues[queue]
	if len(members) == 0 {
		return "", false, nil
	}
	var best string
	var bestScore float64
	first := true
	for m, s := range members {
		if first || s < bestScore {
			best, bestScore, first = m, s, false
		}
	}
	delete(members, best)
	return best, true, nil
}

func (f *Fake) Len(ctx context.Context, queue string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.queues[queue])), nil
}

func (f *Fake) Append(ctx context.Context, stream string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[stream] = append(f.streams[stream], streamEntry{id: time.Now().UnixMilli(), fields: fields})
	return nil
}

func (f *Fake) TrimBefore(ctx context.Context, stream string, minTimestamp int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.streams[stream]
	kept := entries[:0]
	for _, e := range entries {
		if e.id >= minTimestamp {
			kept = append(kept, e)
		}
	}
	f.streams[stream] = kept
	return nil
}

var _ cache.Service = (*Fake)(nil)
