package model

// Stage is the discrete market classification derived from MACD-V and
// recent histogram direction.
type Stage string

const (
	StageOversold   Stage = "oversold"
	StageRebounding Stage = "rebounding"
	StageRallying   Stage = "rallying"
	StageRanging    Stage = "ranging"
	StageRetracing  Stage = "retracing"
	StageReversing  Stage = "reversing"
	StageOverbought Stage = "overbought"
	StageUnknown    Stage = "unknown"
)

// Bullish is the set of stages that count toward the bullish side of the
// multi-timeframe bias score.
func (s Stage) Bullish() bool {
	switch s {
	case StageOversold, StageRebounding, StageRallying:
		return true
	default:
		return false
	}
}

// Bearish is the mirror-image set for the bearish side of the bias score.
func (s Stage) Bearish() bool {
	switch s {
	case StageOverbought, StageRetracing, StageReversing:
		return true
	default:
		return false
	}
}

// Liquidity is the candle-quality grade derived from gap ratio.
type Liquidity string

const (
	LiquidityA Liquidity = "A"
	LiquidityB Liquidity = "B"
	LiquidityC Liquidity = "C"
	LiquidityD Liquidity = "D"
	LiquidityF Liquidity = "F"
)

// GradeLiquidity maps a gap ratio (synthetic/filled) to a letter grade.
func GradeLiquidity(gapRatio float64) Liquidity {
	switch {
	case gapRatio < 0.02:
		return LiquidityA
	case gapRatio < 0.05:
		return LiquidityB
	case gapRatio < 0.15:
		return LiquidityC
	case gapRatio < 0.30:
		return LiquidityD
	default:
		return LiquidityF
	}
}
