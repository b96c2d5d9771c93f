package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeframeMillis(t *testing.T) {
	tests := []struct {
		tf   Timeframe
		want int64
	}{
		{TF1m, 60_000},
		{TF5m, 300_000},
		{TF15m, 900_000},
		{TF1h, 3_600_000},
		{TF4h, 14_400_000},
		{TF1d, 86_400_000},
		{Timeframe("bogus"), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.tf.Millis(), tt.tf)
	}
}

func TestHigherTimeframes(t *testing.T) {
	assert.Equal(t, []Timeframe{TF5m, TF15m, TF1h, TF4h, TF1d}, HigherTimeframes(TF1m))
	assert.Equal(t, []Timeframe{TF15m, TF1h, TF4h, TF1d}, HigherTimeframes(TF5m))
	assert.Nil(t, HigherTimeframes(TF1h))
}

func TestBoundary(t *testing.T) {
	assert.Equal(t, int64(120_000), Boundary(179_999, TF1m))
	assert.Equal(t, int64(180_000), Boundary(180_000, TF1m))
	assert.Equal(t, int64(42), Boundary(42, Timeframe("bogus")))
}

func TestCandleValid(t *testing.T) {
	base := Candle{Timestamp: 60_000, Open: 10, Close: 12, High: 15, Low: 9, Timeframe: TF1m}
	assert.True(t, base.Valid())

	misaligned := base
	misaligned.Timestamp = 60_001
	assert.False(t, misaligned.Valid())

	lowTooHigh := base
	lowTooHigh.Low = 11
	assert.False(t, lowTooHigh.Valid())

	highTooLow := base
	highTooLow.High = 11
	assert.False(t, highTooLow.Valid())
}

func TestAggregateCandles(t *testing.T) {
	bars := []Candle{
		{Timestamp: 0, Open: 10, High: 12, Low: 9, Close: 11, Volume: 5, Symbol: "BTCUSDT"},
		{Timestamp: 60_000, Open: 11, High: 14, Low: 10, Close: 13, Volume: 3},
		{Timestamp: 120_000, Open: 13, High: 13, Low: 8, Close: 9, Volume: 2, IsSynthetic: true},
	}
	agg := AggregateCandles(0, TF5m, bars)
	assert.Equal(t, int64(0), agg.Timestamp)
	assert.Equal(t, TF5m, agg.Timeframe)
	assert.Equal(t, "BTCUSDT", agg.Symbol)
	assert.Equal(t, 10.0, agg.Open)
	assert.Equal(t, 9.0, agg.Close)
	assert.Equal(t, 14.0, agg.High)
	assert.Equal(t, 8.0, agg.Low)
	assert.Equal(t, 10.0, agg.Volume)
	assert.True(t, agg.IsSynthetic)
}

func TestAggregateCandlesEmpty(t *testing.T) {
	agg := AggregateCandles(42, TF1h, nil)
	assert.Equal(t, int64(42), agg.Timestamp)
	assert.Equal(t, TF1h, agg.Timeframe)
	assert.Equal(t, Candle{Timestamp: 42, Timeframe: TF1h}, agg)
}
