package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"livermore/internal/cache/cachetest"
	"livermore/internal/cachekeys"
	"livermore/internal/model"
)

func TestOnTick_AccumulatesWithinBucket(t *testing.T) {
	store := cachetest.New()
	a := New("u", "binance", store, zap.NewNop())

	a.OnTick(context.Background(), "BTCUSDT", 100, 0)
	a.OnTick(context.Background(), "BTCUSDT", 105, 10_000)
	a.OnTick(context.Background(), "BTCUSDT", 95, 20_000)

	scope := cachekeys.Scope{User: "u", Exchange: "binance", Symbol: "BTCUSDT"}
	_, err := store.GetLatestCandle(context.Background(), scope, model.TF1m)
	assert.Error(t, err, "bar has not closed yet")
}

func TestOnTick_EmitsOnBoundaryCross(t *testing.T) {
	store := cachetest.New()
	a := New("u", "binance", store, zap.NewNop())

	var closed []model.Candle
	a.OnCandleClose(func(scope cachekeys.Scope, c model.Candle) { closed = append(closed, c) })

	a.OnTick(context.Background(), "BTCUSDT", 100, 0)
	a.OnTick(context.Background(), "BTCUSDT", 105, 10_000)
	a.OnTick(context.Background(), "BTCUSDT", 95, 20_000)
	a.OnTick(context.Background(), "BTCUSDT", 110, 61_000)

	require.Len(t, closed, 1)
	first := closed[0]
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 105.0, first.High)
	assert.Equal(t, 95.0, first.Low)
	assert.Equal(t, 95.0, first.Close)

	scope := cachekeys.Scope{User: "u", Exchange: "binance", Symbol: "BTCUSDT"}
	latest, err := store.GetLatestCandle(context.Background(), scope, model.TF1m)
	require.NoError(t, err)
	assert.Equal(t, first, latest)
}

func TestFlush_ClosesOpenBarOnce(t *testing.T) {
	store := cachetest.New()
	a := New("u", "binance", store, zap.NewNop())

	var closed int
	a.OnCandleClose(func(scope cachekeys.Scope, c model.Candle) { closed++ })

	a.OnTick(context.Background(), "BTCUSDT", 100, 0)
	a.Flush(context.Background(), "BTCUSDT")
	a.Flush(context.Background(), "BTCUSDT")

	assert.Equal(t, 1, closed)
}

func TestFlush_NoOpWhenNothingOpen(t *testing.T) {
	store := cachetest.New()
	a := New("u", "binance", store, zap.NewNop())

	var closed int
	a.OnCandleClose(func(scope cachekeys.Scope, c model.Candle) { closed++ })
	a.Flush(context.Background(), "BTCUSDT")

	assert.Zero(t, closed)
}
