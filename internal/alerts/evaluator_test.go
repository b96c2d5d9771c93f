package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"livermore/internal/cache/cachetest"
	"livermore/internal/model"
	"livermore/internal/notifier"
)

type fakeAlertStore struct {
	records []model.AlertRecord
}

func (s *fakeAlertStore) InsertAlert(ctx context.Context, record model.AlertRecord) (string, error) {
	s.records = append(s.records, record)
	return "id-1", nil
}

func newTestEvaluator(t *testing.T, store *fakeAlertStore) *Evaluator {
	t.Helper()
	e := New(Config{
		User:       "u",
		Exchange:   "binance",
		ExchangeID: "ex-1",
		Timeframes: []model.Timeframe{model.TF1m},
		Cache:      cachetest.New(),
		AlertStore: store,
		Notifier:   notifier.NewLogNotifier(zap.NewNop()),
		Logger:     zap.NewNop(),
	})
	e.now = func() time.Time { return time.UnixMilli(1_000_000) }
	return e
}

func TestOnIndicator_FirstSampleNeverAlerts(t *testing.T) {
	store := &fakeAlertStore{}
	e := newTestEvaluator(t, store)
	e.OnIndicator(context.Background(), IndicatorEvent{Symbol: "BTCUSDT", Timeframe: model.TF1m, MACDV: -10, Timestamp: 1})
	assert.Empty(t, store.records)
}

func TestOnIndicator_LevelCrossDownFires(t *testing.T) {
	store := &fakeAlertStore{}
	e := newTestEvaluator(t, store)
	e.OnIndicator(context.Background(), IndicatorEvent{Symbol: "BTCUSDT", Timeframe: model.TF1m, MACDV: -100, Timestamp: 1})
	e.OnIndicator(context.Background(), IndicatorEvent{Symbol: "BTCUSDT", Timeframe: model.TF1m, MACDV: -160, Timestamp: 2})

	require.Len(t, store.records, 1)
	assert.Equal(t, "level_-150", store.records[0].TriggerLabel)
}

func TestOnIndicator_LevelCrossCooldownSuppressesRepeat(t *testing.T) {
	store := &fakeAlertStore{}
	e := newTestEvaluator(t, store)
	e.OnIndicator(context.Background(), IndicatorEvent{Symbol: "BTCUSDT", Timeframe: model.TF1m, MACDV: -100, Timestamp: 1})
	e.OnIndicator(context.Background(), IndicatorEvent{Symbol: "BTCUSDT", Timeframe: model.TF1m, MACDV: -160, Timestamp: 2})
	e.OnIndicator(context.Background(), IndicatorEvent{Symbol: "BTCUSDT", Timeframe: model.TF1m, MACDV: -100, Timestamp: 3})
	e.OnIndicator(context.Background(), IndicatorEvent{Symbol: "BTCUSDT", Timeframe: model.TF1m, MACDV: -160, Timestamp: 4})

	assert.Len(t, store.records, 1)
}

func TestOnIndicator_ReversalRequiresBothBarsInZone(t *testing.T) {
	store := &fakeAlertStore{}
	e := newTestEvaluator(t, store)
	e.OnIndicator(context.Background(), IndicatorEvent{Symbol: "BTCUSDT", Timeframe: model.TF1m, MACDV: -160, Timestamp: 1})
	e.OnIndicator(context.Background(), IndicatorEvent{Symbol: "BTCUSDT", Timeframe: model.TF1m, MACDV: -155, Histogram: 20, Timestamp: 2})

	require.Len(t, store.records, 1)
	assert.Equal(t, "reversal_oversold", store.records[0].TriggerLabel)
}

func TestOnIndicator_NaNSampleIgnored(t *testing.T) {
	store := &fakeAlertStore{}
	e := newTestEvaluator(t, store)
	nan := 0.0
	nan = nan / nan
	e.OnIndicator(context.Background(), IndicatorEvent{Symbol: "BTCUSDT", Timeframe: model.TF1m, MACDV: nan, Timestamp: 1})
	assert.Empty(t, store.records)
}
