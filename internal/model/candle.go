package model

// Timeframe identifies a bar width. The pipeline recognizes a fixed set of
// values; config.Validate rejects a base timeframe other than "1m" or "5m".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Millis returns the bucket width of the timeframe in milliseconds.
func (tf Timeframe) Millis() int64 {
	switch tf {
	case TF1m:
		return 60_000
	case TF5m:
		return 5 * 60_000
	case TF15m:
		return 15 * 60_000
	case TF1h:
		return 60 * 60_000
	case TF4h:
		return 4 * 60 * 60_000
	case TF1d:
		return 24 * 60 * 60_000
	default:
		return 0
	}
}

// HigherTimeframes returns the ladder of timeframes derived from base, in
// ascending order ({5m,15m,1h,4h,1d} for base=1m, or
// {15m,1h,4h,1d} for base=5m).
func HigherTimeframes(base Timeframe) []Timeframe {
	switch base {
	case TF1m:
		return []Timeframe{TF5m, TF15m, TF1h, TF4h, TF1d}
	case TF5m:
		return []Timeframe{TF15m, TF1h, TF4h, TF1d}
	default:
		return nil
	}
}

// Boundary floors a millisecond timestamp to the start of its tf bucket.
func Boundary(tsMs int64, tf Timeframe) int64 {
	ms := tf.Millis()
	if ms == 0 {
		return tsMs
	}
	return (tsMs / ms) * ms
}

// Candle is an OHLCV bar for one symbol/timeframe, aligned to a bucket start.
//
// Invariants: Low <= min(Open,Close) <= max(Open,Close) <= High, and
// Timestamp mod Timeframe.Millis() == 0.
type Candle struct {
	Timestamp   int64     `json:"timestamp"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	Symbol      string    `json:"symbol"`
	Timeframe   Timeframe `json:"timeframe"`
	IsSynthetic bool      `json:"isSynthetic,omitempty"`
}

// Valid reports whether c satisfies the OHLC ordering and boundary-alignment
// invariants documented above.
func (c Candle) Valid() bool {
	if c.Low > minF(c.Open, c.Close) || maxF(c.Open, c.Close) > c.High {
		return false
	}
	ms := c.Timeframe.Millis()
	if ms != 0 && c.Timestamp%ms != 0 {
		return false
	}
	return true
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// AggregateCandles merges consecutive lower-timeframe candles (already
// bucketed and sorted ascending by Timestamp) into a single higher-timeframe
// bar: open=first.open, close=last.close, high=max, low=min, volume=sum.
func AggregateCandles(bucketStart int64, tf Timeframe, bars []Candle) Candle {
	if len(bars) == 0 {
		return Candle{Timestamp: bucketStart, Timeframe: tf}
	}
	out := Candle{
		Timestamp: bucketStart,
		Symbol:    bars[0].Symbol,
		Timeframe: tf,
		Open:      bars[0].Open,
		High:      bars[0].High,
		Low:       bars[0].Low,
		Close:     bars[len(bars)-1].Close,
	}
	for _, b := range bars {
		out.High = maxF(out.High, b.High)
		out.Low = minF(out.Low, b.Low)
		out.Volume += b.Volume
		if b.IsSynthetic {
			out.IsSynthetic = true
		}
	}
	return out
}
