package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livermore/internal/model"
)

func makeTrendingCandles(n int, start, step float64) []model.Candle {
	candles := make([]model.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		open := price
		price += step
		close := price
		high := close + 1
		low := open - 1
		if low > close {
			low = close - 1
		}
		candles[i] = model.Candle{
			Timestamp: int64(i) * model.TF1m.Millis(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    10,
			Symbol:    "BTCUSDT",
			Timeframe: model.TF1m,
		}
	}
	return candles
}

func TestCompute_Warmup(t *testing.T) {
	candles := makeTrendingCandles(10, 100, 1)
	result := Compute(candles, model.TF1m)
	assert.False(t, result.Params.Seeded)
	assert.Equal(t, "warmup", result.Params.Reason)
}

func TestCompute_SeededOnTrendingSeries(t *testing.T) {
	candles := makeTrendingCandles(80, 100, 1)
	result := Compute(candles, model.TF1m)
	require.True(t, result.Params.Seeded)
	assert.Empty(t, result.Params.Reason)
	assert.Greater(t, result.Values.FastEMA, result.Values.SlowEMA)
	assert.Greater(t, result.Values.MACDV, 0.0)
	assert.NotZero(t, result.Values.ATR)
}

func TestCompute_AllZeroRangeBars(t *testing.T) {
	candles := make([]model.Candle, 80)
	for i := range candles {
		candles[i] = model.Candle{
			Timestamp: int64(i) * model.TF1m.Millis(),
			Open:      100, High: 100, Low: 100, Close: 100,
			Symbol: "BTCUSDT", Timeframe: model.TF1m,
		}
	}
	result := Compute(candles, model.TF1m)
	assert.False(t, result.Params.Seeded)
	assert.Equal(t, "all_zero_range", result.Params.Reason)
}

func TestCompute_GapFillFeedsWarmupButNotAlerts(t *testing.T) {
	candles := makeTrendingCandles(80, 100, 1)
	// Drop every third bar to force gap-fill synthetic bars into the series.
	var sparse []model.Candle
	for i, c := range candles {
		if i%3 == 0 {
			continue
		}
		sparse = append(sparse, c)
	}
	result := Compute(sparse, model.TF1m)
	assert.Greater(t, result.Params.GapRatio, 0.0)
	assert.True(t, result.Params.Seeded)
}

func TestClassifyStage(t *testing.T) {
	tests := []struct {
		name      string
		macdV     float64
		rising    bool
		wantStage model.Stage
	}{
		{"deep oversold", -200, false, model.StageOversold},
		{"oversold rebounding", -100, true, model.StageRebounding},
		{"oversold reversing", -100, false, model.StageReversing},
		{"ranging", 0, false, model.StageRanging},
		{"overbought rallying", 100, true, model.StageRallying},
		{"overbought retracing", 100, false, model.StageRetracing},
		{"deep overbought", 200, false, model.StageOverbought},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStage, ClassifyStage(tt.macdV, tt.rising))
		})
	}
}

func TestHistogramRising(t *testing.T) {
	assert.False(t, HistogramRising(nil))
	assert.False(t, HistogramRising([]float64{1}))
	assert.True(t, HistogramRising([]float64{1, 2, 3}))
	assert.False(t, HistogramRising([]float64{3, 2, 1}))
}
