// Package rediscache implements internal/cache.Service over
// github.com/redis/go-redis/v9, grounded on pkg/redis/client.go's
// marshal-then-Publish/Set/Get idiom and
// internal/analytics/redis_candle_aggregator.go's ordered-candle
// persistence. Every operation is asynchronous (ctx-bound) and returns
// errors rather than panicking
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"livermore/internal/cache"
	"livermore/internal/cachekeys"
	"livermore/internal/model"
)

// CandleBound is the maximum number of candles retained per (scope, tf),
// comfortably covering the 60-bar readiness gate plus indicator warm-up.
const CandleBound = 400

// Cache is the Redis-backed implementation of cache.Service.
type Cache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// Config holds Redis connection parameters, mirroring
// pkg/redis/client.go's ClientConfig.
type Config struct {
	Addr       string
	DB         int
	Password   string
	PoolSize   int
	MaxRetries int
}

// New dials Redis and verifies connectivity with a bounded ping.
func New(cfg Config, logger *zap.Logger) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		DB:         cfg.DB,
		Password:   cfg.Password,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rediscache: connect: %w", model.ErrTransientIO)
	}

	logger.Info("rediscache connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &Cache{rdb: rdb, logger: logger}, nil
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}

// ---- CandleStore ----

func (c *Cache) AddCandles(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	key := cachekeys.Candles(scope, tf)
	pipe := c.rdb.TxPipeline()
	for _, candle := range candles {
		data, err := json.Marshal(candle)
		if err != nil {
			return fmt.Errorf("rediscache: marshal candle: %w", err)
		}
		// Idempotent-by-timestamp: drop any existing member at this score
		// before inserting, so a re-delivered candle replaces rather than
		// duplicates.
		pipe.ZRemRangeByScore(ctx, key, scoreStr(candle.Timestamp), scoreStr(candle.Timestamp))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(candle.Timestamp), Member: data})
	}
	pipe.ZRemRangeByRank(ctx, key, 0, -(CandleBound + 1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rediscache: add candles: %w", model.ErrTransientIO)
	}
	return nil
}

func scoreStr(ts int64) string { return fmt.Sprintf("%d", ts) }

func (c *Cache) GetRecentCandles(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, count int) ([]model.Candle, error) {
	if count <= 0 {
		return nil, nil
	}
	key := cachekeys.Candles(scope, tf)
	raw, err := c.rdb.ZRange(ctx, key, int64(-count), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("rediscache: get recent candles: %w", model.ErrTransientIO)
	}
	return decodeCandles(raw)
}

func (c *Cache) GetLatestCandle(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe) (model.Candle, error) {
	key := cachekeys.Candles(scope, tf)
	raw, err := c.rdb.ZRevRange(ctx, key, 0, 0).Result()
	if err != nil {
		return model.Candle{}, fmt.Errorf("rediscache: get latest candle: %w", model.ErrTransientIO)
	}
	if len(raw) == 0 {
		return model.Candle{}, cache.ErrNotFound
	}
	out, err := decodeCandles(raw)
	if err != nil {
		return model.Candle{}, err
	}
	return out[0], nil
}

func decodeCandles(raw []string) ([]model.Candle, error) {
	out := make([]model.Candle, 0, len(raw))
	for _, s := range raw {
		var candle model.Candle
		if err := json.Unmarshal([]byte(s), &candle); err != nil {
			return nil, fmt.Errorf("rediscache: decode candle: %w", model.ErrDataInvalid)
		}
		out = append(out, candle)
	}
	return out, nil
}

// ---- IndicatorStore ----

func (c *Cache) SetIndicator(ctx context.Context, scope cachekeys.Scope, v model.IndicatorValue) error {
	key := cachekeys.Indicator(scope, v.Timeframe, v.Type)
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rediscache: marshal indicator: %w", err)
	}
	if err := c.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("rediscache: set indicator: %w", model.ErrTransientIO)
	}
	return nil
}

func (c *Cache) GetIndicator(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, indType string) (model.IndicatorValue, error) {
	key := cachekeys.Indicator(scope, tf, indType)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return model.IndicatorValue{}, cache.ErrNotFound
		}
		return model.IndicatorValue{}, fmt.Errorf("rediscache: get indicator: %w", model.ErrTransientIO)
	}
	var v model.IndicatorValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.IndicatorValue{}, fmt.Errorf("rediscache: decode indicator: %w", model.ErrDataInvalid)
	}
	return v, nil
}

func (c *Cache) GetIndicatorsBulk(ctx context.Context, user, exchange string, reqs []cache.IndicatorRequest) (map[string]model.IndicatorValue, error) {
	if len(reqs) == 0 {
		return map[string]model.IndicatorValue{}, nil
	}
	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(reqs))
	for i, r := range reqs {
		scope := cachekeys.Scope{User: user, Exchange: exchange, Symbol: r.Symbol}
		cmds[i] = pipe.Get(ctx, cachekeys.Indicator(scope, r.Timeframe, r.Type))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("rediscache: bulk get indicators: %w", model.ErrTransientIO)
	}

	out := make(map[string]model.IndicatorValue, len(reqs))
	for i, r := range reqs {
		raw, err := cmds[i].Bytes()
		if err != nil {
			continue // missing entries are simply absent from the map
		}
		var v model.IndicatorValue
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out[fmt.Sprintf("%s:%s", r.Symbol, r.Timeframe)] = v
	}
	return out, nil
}

// ---- TickerStore ----

func (c *Cache) SetTicker(ctx context.Context, scope cachekeys.Scope, t model.Ticker) error {
	key := cachekeys.Ticker(scope)
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("rediscache: marshal ticker: %w", err)
	}
	if err := c.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("rediscache: set ticker: %w", model.ErrTransientIO)
	}
	return nil
}

func (c *Cache) GetTicker(ctx context.Context, scope cachekeys.Scope) (model.Ticker, error) {
	key := cachekeys.Ticker(scope)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return model.Ticker{}, cache.ErrNotFound
		}
		return model.Ticker{}, fmt.Errorf("rediscache: get ticker: %w", model.ErrTransientIO)
	}
	var t model.Ticker
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.Ticker{}, fmt.Errorf("rediscache: decode ticker: %w", model.ErrDataInvalid)
	}
	return t, nil
}

// ---- Publisher ----

func (c *Cache) publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rediscache: marshal publish payload: %w", err)
	}
	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		c.logger.Warn("publish failed", zap.String("channel", channel), zap.Error(err))
		return fmt.Errorf("rediscache: publish: %w", model.ErrTransientIO)
	}
	return nil
}

func (c *Cache) Publish(ctx context.Context, channel string, payload any) error {
	return c.publish(ctx, channel, payload)
}

func (c *Cache) PublishCandleClose(ctx context.Context, scope cachekeys.Scope, tf model.Timeframe, candle model.Candle) error {
	return c.publish(ctx, cachekeys.CandleCloseChannel(scope, tf), candle)
}

func (c *Cache) PublishIndicator(ctx context.Context, scope cachekeys.Scope, v model.IndicatorValue) error {
	return c.publish(ctx, cachekeys.IndicatorChannel(scope, v.Timeframe, v.Type), v)
}

func (c *Cache) PublishTicker(ctx context.Context, scope cachekeys.Scope, t model.Ticker) error {
	return c.publish(ctx, cachekeys.TickerChannel(scope), t)
}

func (c *Cache) PublishAlert(ctx context.Context, exchange string, payload model.AlertPubSubPayload) error {
	return c.publish(ctx, cachekeys.AlertChannel(exchange), payload)
}

func (c *Cache) Subscribe(ctx context.Context, patterns []string) (<-chan cache.Message, func() error, error) {
	pubsub := c.rdb.PSubscribe(ctx, patterns...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("rediscache: subscribe: %w", model.ErrTransientIO)
	}

	out := make(chan cache.Message, 256)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- cache.Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, pubsub.Close, nil
}

// ---- KV ----

func (c *Cache) Set(ctx context.Context, key string, value any, mode cache.TTLMode, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("rediscache: marshal value: %w", err)
	}

	var ok bool
	switch mode {
	case cache.CreateOnly:
		ok, err = c.rdb.SetNX(ctx, key, data, ttl).Result()
	case cache.ReplaceOnly:
		ok, err = c.rdb.SetXX(ctx, key, data, ttl).Result()
	case cache.KeepExistingTTL:
		err = c.rdb.Do(ctx, "SET", key, data, "KEEPTTL").Err()
		ok = err == nil
	case cache.SetWithTTL:
		err = c.rdb.Set(ctx, key, data, ttl).Err()
		ok = err == nil
	default:
		return fmt.Errorf("rediscache: unknown ttl mode %d", mode)
	}

	if err != nil {
		return fmt.Errorf("rediscache: set %s: %w", key, model.ErrTransientIO)
	}
	if !ok {
		return cache.ErrPreconditionFailed
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return cache.ErrNotFound
		}
		return fmt.Errorf("rediscache: get %s: %w", key, model.ErrTransientIO)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("rediscache: decode %s: %w", key, model.ErrDataInvalid)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	// Batched to stay cluster-safe: a single DEL with hundreds of keys can
	// hash to different shards in a clustered deployment.
	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.rdb.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("rediscache: delete batch: %w", model.ErrTransientIO)
		}
	}
	return nil
}

func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("rediscache: ttl %s: %w", key, model.ErrTransientIO)
	}
	if d == -2 { // go-redis reports a missing key as a raw -2, not -2s
		return 0, cache.ErrNotFound
	}
	return d, nil
}

func (c *Cache) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("rediscache: scan %s: %w", pattern, model.ErrTransientIO)
	}
	return keys, nil
}

// ---- PriorityQueue ----

func (c *Cache) Push(ctx context.Context, queue string, score float64, member string) error {
	if err := c.rdb.ZAdd(ctx, queue, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("rediscache: push %s: %w", queue, model.ErrTransientIO)
	}
	return nil
}

func (c *Cache) PopLowest(ctx context.Context, queue string) (string, bool, error) {
	res, err := c.rdb.ZPopMin(ctx, queue, 1).Result()
	if err != nil {
		return "", false, fmt.Errorf("rediscache: pop %s: %w", queue, model.ErrTransientIO)
	}
	if len(res) == 0 {
		return "", false, nil
	}
	member, _ := res[0].Member.(string)
	return member, true, nil
}

func (c *Cache) Len(ctx context.Context, queue string) (int64, error) {
	n, err := c.rdb.ZCard(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("rediscache: len %s: %w", queue, model.ErrTransientIO)
	}
	return n, nil
}

// ---- ActivityStream ----

func (c *Cache) Append(ctx context.Context, stream string, fields map[string]string) error {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	if err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err(); err != nil {
		// Log here and return the error; activitylog.Append is the layer
		// that swallows it.
		c.logger.Warn("activity append failed", zap.String("stream", stream), zap.Error(err))
		return fmt.Errorf("rediscache: append %s: %w", stream, model.ErrTransientIO)
	}
	return nil
}

func (c *Cache) TrimBefore(ctx context.Context, stream string, minTimestamp int64) error {
	minID := fmt.Sprintf("%d-0", minTimestamp)
	if err := c.rdb.XTrimMinID(ctx, stream, minID).Err(); err != nil {
		return fmt.Errorf("rediscache: trim %s: %w", stream, model.ErrTransientIO)
	}
	return nil
}

var _ cache.Service = (*Cache)(nil)
