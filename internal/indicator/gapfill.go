package indicator

import "livermore/internal/model"

// GapFillStats summarizes the synthetic-bar insertion pass.
type GapFillStats struct {
	OriginalCount  int
	FilledCount    int
	SyntheticCount int
	GapRatio       float64
}

// GapFill inserts a synthetic bar {o=h=l=c=prevClose, volume=0,
// isSynthetic=true} for every missing bucket between consecutive input
// candles (which must already be sorted ascending by Timestamp for a single
// timeframe). Returns the filled series and fill statistics.
func GapFill(candles []model.Candle, tf model.Timeframe) ([]model.Candle, GapFillStats) {
	stats := GapFillStats{OriginalCount: len(candles)}
	if len(candles) == 0 {
		return nil, stats
	}

	step := tf.Millis()
	filled := make([]model.Candle, 0, len(candles))
	filled = append(filled, candles[0])

	for i := 1; i < len(candles); i++ {
		prev := filled[len(filled)-1]
		cur := candles[i]
		if step > 0 {
			for gapTS := prev.Timestamp + step; gapTS < cur.Timestamp; gapTS += step {
				filled = append(filled, model.Candle{
					Timestamp:   gapTS,
					Open:        prev.Close,
					High:        prev.Close,
					Low:         prev.Close,
					Close:       prev.Close,
					Volume:      0,
					Symbol:      cur.Symbol,
					Timeframe:   tf,
					IsSynthetic: true,
				})
			}
		}
		filled = append(filled, cur)
	}

	stats.FilledCount = len(filled)
	stats.SyntheticCount = stats.FilledCount - stats.OriginalCount
	if stats.FilledCount > 0 {
		stats.GapRatio = float64(stats.SyntheticCount) / float64(stats.FilledCount)
	}
	return filled, stats
}

// ZeroRangeRatio returns the fraction of non-synthetic bars with
// high == low.
func ZeroRangeRatio(filled []model.Candle) float64 {
	var real, zero int
	for _, c := range filled {
		if c.IsSynthetic {
			continue
		}
		real++
		if c.High == c.Low {
			zero++
		}
	}
	if real == 0 {
		return 0
	}
	return float64(zero) / float64(real)
}
