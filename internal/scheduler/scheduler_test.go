package scheduler

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

func seedCandles(t *testing.T, store *cachetest.Fake, scope cachekeys.Scope, tf model.Timeframe, n int) []model.Candle {
	t.Helper()
	candles := make([]model.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		candles[i] = model.Candle{
			Timestamp: int64(i) * tf.Millis(),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    10,
			Symbol:    scope.Symbol,
			Timeframe: tf,
		}
		price += 0.5
	}
	require.NoError(t, store.AddCandles(context.Background(), scope, tf, candles))
	return candles
}

func TestOnCandleClose_RecomputesBaseTimeframe(t *testing.T) {
	store := cachetest.New()
	scope := cachekeys.Scope{User: "u", Exchange: "binance", Symbol: "BTCUSDT"}
	candles := seedCandles(t, store, scope, model.TF1m, ReadyBars+10)

	s := New("u", "binance", []SymbolConfig{{Symbol: "BTCUSDT", BaseTF: model.TF1m}}, SourceAggregate, store, zap.NewNop(), 0)

	var seen []model.IndicatorValue
	s.OnIndicatorComputed(func(scope cachekeys.Scope, v model.IndicatorValue) {
		seen = append(seen, v)
	})

	s.OnCandleClose(context.Background(), "BTCUSDT", candles[len(candles)-1])

	require.NotEmpty(t, seen)
	v, err := store.GetIndicator(context.Background(), scope, model.TF1m, model.IndicatorTypeMACDV)
	require.NoError(t, err)
	assert.Equal(t, model.IndicatorTypeMACDV, v.Type)
}

func TestOnCandleClose_UnmonitoredSymbolIgnored(t *testing.T) {
	store := cachetest.New()
	s := New("u", "binance", nil, SourceAggregate, store, zap.NewNop(), 0)

	called := false
	s.OnIndicatorComputed(func(scope cachekeys.Scope, v model.IndicatorValue) { called = true })
	s.OnCandleClose(context.Background(), "ETHUSDT", model.Candle{Timestamp: 60_000})
	assert.False(t, called)
}

func TestOnCandleClose_SkipsBelowReadyBars(t *testing.T) {
	store := cachetest.New()
	scope := cachekeys.Scope{User: "u", Exchange: "binance", Symbol: "BTCUSDT"}
	candles := seedCandles(t, store, scope, model.TF1m, ReadyBars-5)

	s := New("u", "binance", []SymbolConfig{{Symbol: "BTCUSDT", BaseTF: model.TF1m}}, SourceAggregate, store, zap.NewNop(), 0)
	s.OnCandleClose(context.Background(), "BTCUSDT", candles[len(candles)-1])

	_, err := store.GetIndicator(context.Background(), scope, model.TF1m, model.IndicatorTypeMACDV)
	assert.Error(t, err)
}

func TestAddSymbolAndRemoveSymbol(t *testing.T) {
	store := cachetest.New()
	s := New("u", "binance", nil, SourceAggregate, store, zap.NewNop(), 0)

	s.AddSymbol("BTCUSDT", model.TF1m, 0)
	assert.Contains(t, s.Symbols(), "BTCUSDT")

	s.RemoveSymbol("BTCUSDT")
	assert.NotContains(t, s.Symbols(), "BTCUSDT")
}

func TestSubscribePattern(t *testing.T) {
	store := cachetest.New()
	s := New("u", "binance", nil, SourceAggregate, store, zap.NewNop(), 0)
	assert.Equal(t, cachekeys.CandleClosePattern("u", "binance", model.TF1m), s.SubscribePattern(model.TF1m))
}
