package model

// IndicatorParams carries the MACD-V computation's observability metadata:
// period configuration plus gap-fill/readiness diagnostics.
type IndicatorParams struct {
	FastPeriod     int       `json:"fastPeriod"`
	SlowPeriod     int       `json:"slowPeriod"`
	ATRPeriod      int       `json:"atrPeriod"`
	SignalPeriod   int       `json:"signalPeriod"`
	Stage          Stage     `json:"stage"`
	Liquidity      Liquidity `json:"liquidity"`
	GapRatio       float64   `json:"gapRatio"`
	ZeroRangeRatio float64   `json:"zeroRangeRatio"`
	Seeded         bool      `json:"seeded"`
	NEff           int       `json:"nEff"`
	SpanBars       int       `json:"spanBars"`
	Reason         string    `json:"reason,omitempty"`
}

// IndicatorValues holds the numeric outputs of one MACD-V computation.
type IndicatorValues struct {
	MACDV     float64 `json:"macdV"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	FastEMA   float64 `json:"fastEMA"`
	SlowEMA   float64 `json:"slowEMA"`
	ATR       float64 `json:"atr"`
}

// IndicatorValue is the latest-only per (symbol, timeframe, type) record
// recomputed on every bar close.
type IndicatorValue struct {
	Timestamp int64           `json:"timestamp"`
	Type      string          `json:"type"` // always "macd-v" in this pipeline
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Value     IndicatorValues `json:"value"`
	Params    IndicatorParams `json:"params"`
}

// Valid returns false for indicator values that should not be published or
// fed into the alert evaluator: a NaN/unset MACD-V from an unseeded ATR.
func (v IndicatorValue) Valid() bool {
	return v.Params.Seeded && !isNaN(v.Value.MACDV)
}

func isNaN(f float64) bool {
	return f != f
}

const IndicatorTypeMACDV = "macd-v"
