package indicator

import "livermore/internal/model"

// trueRange computes the per-bar true range: max(high-low, |high-prevClose|,
// |low-prevClose|), or high-low for the first bar.
func trueRange(c model.Candle, prevClose float64, hasPrev bool) float64 {
	if !hasPrev {
		return c.High - c.Low
	}
	tr := c.High - c.Low
	if d := absF(c.High - prevClose); d > tr {
		tr = d
	}
	if d := absF(c.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// atrTracker is an EMA-of-true-range that skips synthetic bars: a synthetic
// bar propagates the prior ATR value unchanged, so only real bars
// contribute to the true-range smoothing.
type atrTracker struct {
	period    int
	ema       *ema
	prevClose float64
	hasPrev   bool
	nEff      int // real (non-synthetic) bars that contributed
	spanBars  int // total bars observed, synthetic or not
}

func newATRTracker(period int) *atrTracker {
	return &atrTracker{period: period, ema: newEMA(period)}
}

// update folds one bar into the tracker and returns the current ATR value
// (0 if not yet seeded).
func (t *atrTracker) update(c model.Candle) float64 {
	t.spanBars++
	if c.IsSynthetic {
		return t.ema.value
	}
	tr := trueRange(c, t.prevClose, t.hasPrev)
	t.prevClose = c.Close
	t.hasPrev = true
	t.nEff++
	v, _ := t.ema.update(tr)
	return v
}

func (t *atrTracker) seeded() bool { return t.nEff >= t.period }
