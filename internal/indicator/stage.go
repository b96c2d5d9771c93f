package indicator

import "livermore/internal/model"

// ClassifyStage maps a MACD-V value and recent histogram direction to a
// discrete Stage. histogramRising reports whether the histogram has been
// increasing over the last few bars.
func ClassifyStage(macdV float64, histogramRising bool) model.Stage {
	switch {
	case macdV < -150:
		return model.StageOversold
	case macdV < -50:
		if histogramRising {
			return model.StageRebounding
		}
		return model.StageReversing
	case macdV <= 50:
		return model.StageRanging
	case macdV <= 150:
		if histogramRising {
			return model.StageRallying
		}
		return model.StageRetracing
	default:
		return model.StageOverbought
	}
}

// HistogramRising reports whether the trailing window of histogram values
// (oldest-first, typically the last 3 bars) ends strictly higher than it
// started; intermediate values are not compared.
func HistogramRising(window []float64) bool {
	if len(window) < 2 {
		return false
	}
	return window[len(window)-1] > window[0]
}
