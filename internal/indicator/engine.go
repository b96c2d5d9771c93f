// Package indicator implements the MACD-V computation pipeline: EMA,
// true-range/ATR, MACD-V, signal, histogram, and stage classification, with
// gap-fill and a minimum-bar readiness gate. The EMA legs (fast, slow,
// signal) are batch-recomputed each bar-close with github.com/markcheno/
// go-talib over the retained candle window; the true-range/ATR leg stays
// hand-rolled because it must skip synthetic gap-fill bars and track how
// many real bars actually seeded it (talib.Atr has no such notion — see
// DESIGN.md).
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"livermore/internal/model"
)

const (
	FastPeriod   = 12
	SlowPeriod   = 26
	ATRPeriod    = 26
	SignalPeriod = 9
	// MinBars is the absolute floor the engine itself enforces
	// (slow + signal). The scheduler's readiness gate is stricter (60).
	MinBars = SlowPeriod + SignalPeriod
)

// Result is the full MACD-V computation output for one symbol/timeframe at
// the latest bar.
type Result struct {
	Values model.IndicatorValues
	Params model.IndicatorParams
}

// Compute runs the full pipeline over ordered candles (oldest-first) for one
// symbol/timeframe and returns the latest bar's indicator values.
func Compute(candles []model.Candle, tf model.Timeframe) Result {
	filled, gapStats := GapFill(candles, tf)

	params := model.IndicatorParams{
		FastPeriod:     FastPeriod,
		SlowPeriod:     SlowPeriod,
		ATRPeriod:      ATRPeriod,
		SignalPeriod:   SignalPeriod,
		GapRatio:       gapStats.GapRatio,
		ZeroRangeRatio: ZeroRangeRatio(filled),
		Liquidity:      model.GradeLiquidity(gapStats.GapRatio),
		SpanBars:       len(filled),
	}

	if len(filled) < MinBars {
		params.Reason = "warmup"
		return Result{Params: params}
	}

	closes := make([]float64, len(filled))
	for i, c := range filled {
		closes[i] = c.Close
	}
	fastEMAs := talib.Ema(closes, FastPeriod)
	slowEMAs := talib.Ema(closes, SlowPeriod)

	atr := newATRTracker(ATRPeriod)
	var macdVValid []float64
	for i, c := range filled {
		atrVal := atr.update(c)
		if i+1 >= FastPeriod && i+1 >= SlowPeriod && atr.seeded() && atrVal != 0 {
			if v := fastEMAs[i]; !math.IsNaN(v) {
				if w := slowEMAs[i]; !math.IsNaN(w) {
					macdVValid = append(macdVValid, (v-w)/atrVal*100)
				}
			}
		}
	}

	params.NEff = atr.nEff
	params.SpanBars = atr.spanBars

	lastFastEMA := fastEMAs[len(fastEMAs)-1]
	lastSlowEMA := slowEMAs[len(slowEMAs)-1]
	lastATR := atr.ema.value

	switch {
	case !atr.seeded():
		params.Reason = "insufficient_real_bars"
		return Result{Params: params}
	case lastATR == 0:
		params.Reason = "all_zero_range"
		return Result{Params: params}
	}

	if len(macdVValid) < SignalPeriod {
		params.Reason = "warmup"
		return Result{Params: params}
	}

	signalSeries := talib.Ema(macdVValid, SignalPeriod)
	lastMACDV := macdVValid[len(macdVValid)-1]
	lastSignal := signalSeries[len(signalSeries)-1]
	if math.IsNaN(lastSignal) {
		params.Reason = "warmup"
		return Result{Params: params}
	}

	var histogramWindow []float64
	for i := SignalPeriod - 1; i < len(signalSeries); i++ {
		if math.IsNaN(signalSeries[i]) {
			continue
		}
		histogramWindow = append(histogramWindow, macdVValid[i]-signalSeries[i])
	}
	if len(histogramWindow) > 3 {
		histogramWindow = histogramWindow[len(histogramWindow)-3:]
	}

	params.Seeded = true
	histogram := lastMACDV - lastSignal
	params.Stage = ClassifyStage(lastMACDV, HistogramRising(histogramWindow))

	return Result{
		Values: model.IndicatorValues{
			MACDV:     lastMACDV,
			Signal:    lastSignal,
			Histogram: histogram,
			FastEMA:   lastFastEMA,
			SlowEMA:   lastSlowEMA,
			ATR:       lastATR,
		},
		Params: params,
	}
}
