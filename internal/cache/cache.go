// Package cache defines the storage-agnostic contracts consumed by every
// other subsystem: an ordered candle store, latest-value
// indicator/ticker stores, pub/sub publish helpers, a priority queue, and a
// time-trimmed append-only stream. internal/cache/rediscache supplies the
// only shipped implementation, over go-redis/v9.
package cache

import (
	"context"
	"time"

	"livermore/internal/cachekeys"
	"livermore/internal/model"
)

// TTLMode selects one of the four write semantics the cache service's
// keyed get/set surface supports.
type TTLMode int

const (
	// CreateOnly fails if the key already exists (Redis SET NX).
	CreateOnly TTLMode = iota
	// ReplaceOnly fails if the key does not already exist (Redis SET XX).
	ReplaceOnly
	// KeepExistingTTL writes the value without touching the key's TTL
	// (Redis SET KEEPTTL).
	KeepExistingTTL
	// SetWithTTL writes the value and (re)sets its TTL unconditionally.
	SetWithTTL
)

// ErrNotFound is returned by Get-style operations when the key is absent.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "cache: key not found" }

// ErrPreconditionFailed is returned when a CreateOnly/ReplaceOnly write's
// precondition does not hold (key exists / key missing, respectively).
var ErrPreconditionFailed = errPrecondition{}

type errPrecondition struct{}

func (errPrecondition) Error() string { return "cache: write precondition failed" }

// CandleStore is the ordered, bounded candle history per (scope, timeframe).
type CandleStore interface {
	// AddCandles inserts candles, sorted by Timestamp, idempotent on
	// Timestamp, trimming to the bound after insert.
	AddCandles(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, candles []model.Candle) error
	// GetRecentCandles returns up to count candles, oldest-first.
	GetRecentCandles(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, count int) ([]model.Candle, error)
	// GetLatestCandle returns the most recent candle, or ErrNotFound.
	GetLatestCandle(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe) (model.Candle, error)
}

// IndicatorStore is the latest-only indicator value per (scope, tf, type).
type IndicatorStore interface {
	SetIndicator(ctx context.Context, scope cachekeys.Scope, v model.IndicatorValue) error
	GetIndicator(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, indType string) (model.IndicatorValue, error)
	// GetIndicatorsBulk resolves many (symbol, tf) pairs in one backend
	// round-trip, keyed by "symbol:tf" in the returned map.
	GetIndicatorsBulk(ctx context.Context, user, exchange string, reqs []IndicatorRequest) (map[string]model.IndicatorValue, error)
}

// IndicatorRequest names one (symbol, timeframe) pair for a bulk fetch.
type IndicatorRequest struct {
	Symbol    string
	Timeframe model.Timeframe
	Type      string
}

// TickerStore is the latest-only ticker snapshot per scope.
type TickerStore interface {
	SetTicker(ctx context.Context, scope cachekeys.Scope, t model.Ticker) error
	GetTicker(ctx context.Context, scope cachekeys.Scope) (model.Ticker, error)
}

// Publisher fans out the pub/sub events the pipeline emits.
type Publisher interface {
	PublishCandleClose(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, c model.Candle) error
	PublishIndicator(ctx context.Context, scope cachekeys.Scope, v model.IndicatorValue) error
	PublishTicker(ctx context.Context, scope cachekeys.Scope, t model.Ticker) error
	// PublishAlert announces a triggered alert on the per-exchange channel.
	PublishAlert(ctx context.Context, exchange string, payload model.AlertPubSubPayload) error
	// Publish sends an arbitrary payload on an arbitrary channel — used by
	// the control channel for ack/success/error responses.
	Publish(ctx context.Context, channel string, payload any) error
	// Subscribe returns a channel of raw payloads for one or more topics or
	// patterns (rediscache subscribes to all of them with PSUBSCRIBE).
	Subscribe(ctx context.Context, patterns []string) (<-chan Message, func() error, error)
}

// Message is one delivered pub/sub payload.
type Message struct {
	Channel string
	Payload []byte
}

// KV is the generic keyed get/set surface with the four TTL modes.
type KV interface {
	Set(ctx context.Context, key string, value any, mode TTLMode, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
	// ScanKeys enumerates keys matching pattern, batched for sharded safety.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	// TTL returns the key's remaining time-to-live, or -1 if it has none and
	// 0 (with ErrNotFound) if it does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// PriorityQueue is the score-ordered set backing the control channel's
// command drain loop.
type PriorityQueue interface {
	Push(ctx context.Context, queue string, score float64, member string) error
	// PopLowest removes and returns the lowest-scored member, or ok=false
	// if the queue is empty.
	PopLowest(ctx context.Context, queue string) (member string, ok bool, err error)
	Len(ctx context.Context, queue string) (int64, error)
}

// ActivityStream is the time-trimmed, append-only event log per exchange.
type ActivityStream interface {
	Append(ctx context.Context, stream string, fields map[string]string) error
	// TrimBefore drops entries with an ID older than minTimestamp (ms).
	TrimBefore(ctx context.Context, stream string, minTimestamp int64) error
}

// Service aggregates every contract a single cache backend must satisfy.
type Service interface {
	CandleStore
	IndicatorStore
	TickerStore
	Publisher
	KV
	PriorityQueue
	ActivityStream
	Close() error
}
