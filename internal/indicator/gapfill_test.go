package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livermore/internal/model"
)

func TestGapFill_NoGaps(t *testing.T) {
	candles := []model.Candle{
		{Timestamp: 0, Close: 10},
		{Timestamp: 60_000, Close: 11},
		{Timestamp: 120_000, Close: 12},
	}
	filled, stats := GapFill(candles, model.TF1m)
	assert.Equal(t, candles, filled)
	assert.Equal(t, 0, stats.SyntheticCount)
	assert.Zero(t, stats.GapRatio)
}

func TestGapFill_InsertsSyntheticBars(t *testing.T) {
	candles := []model.Candle{
		{Timestamp: 0, Close: 10, Symbol: "BTCUSDT"},
		{Timestamp: 3 * 60_000, Close: 13, Symbol: "BTCUSDT"},
	}
	filled, stats := GapFill(candles, model.TF1m)
	require.Len(t, filled, 4)
	assert.Equal(t, 2, stats.SyntheticCount)
	assert.InDelta(t, 0.5, stats.GapRatio, 0.001)

	for _, idx := range []int{1, 2} {
		assert.True(t, filled[idx].IsSynthetic)
		assert.Equal(t, 10.0, filled[idx].Open)
		assert.Equal(t, 10.0, filled[idx].High)
		assert.Equal(t, 10.0, filled[idx].Low)
		assert.Equal(t, 10.0, filled[idx].Close)
		assert.Zero(t, filled[idx].Volume)
	}
	assert.False(t, filled[3].IsSynthetic)
	assert.Equal(t, 13.0, filled[3].Close)
}

func TestGapFill_Empty(t *testing.T) {
	filled, stats := GapFill(nil, model.TF1m)
	assert.Nil(t, filled)
	assert.Zero(t, stats.OriginalCount)
}

func TestZeroRangeRatio(t *testing.T) {
	candles := []model.Candle{
		{High: 10, Low: 10},
		{High: 10, Low: 9},
		{High: 10, Low: 10, IsSynthetic: true}, // excluded from the ratio
	}
	assert.InDelta(t, 0.5, ZeroRangeRatio(candles), 0.001)
	assert.Zero(t, ZeroRangeRatio(nil))
}
