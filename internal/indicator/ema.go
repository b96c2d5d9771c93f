package indicator

// ema is a seeded exponential moving average: the first `period` inputs are
// averaged arithmetically to seed the recurrence, after which standard EMA
// smoothing (2/(period+1)) applies. Grounded on
// RohanRaikwar-algo-sys-v1/backend/internal/indicator/ema.go's O(1),
// single-pass EMA state machine. Only atrTracker still uses this directly,
// to smooth true-range one real bar at a time; the fast/slow/signal EMA
// legs are batch-recomputed with talib.Ema instead (see engine.go).
type ema struct {
	period int
	mult   float64
	sum    float64
	count  int
	value  float64
}

func newEMA(period int) *ema {
	return &ema{period: period, mult: 2.0 / float64(period+1)}
}

// update folds one sample into the EMA and returns the new value and
// whether the EMA is seeded (count >= period).
func (e *ema) update(x float64) (float64, bool) {
	e.count++
	if e.count < e.period {
		e.sum += x
		return 0, false
	}
	if e.count == e.period {
		e.sum += x
		e.value = e.sum / float64(e.period)
		return e.value, true
	}
	e.value = x*e.mult + e.value*(1-e.mult)
	return e.value, true
}
