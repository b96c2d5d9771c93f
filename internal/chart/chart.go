// Package chart declares the chart-rendering boundary the alert evaluator
// calls on emit. A concrete renderer (server-side candlestick
// image generation) is out of scope for this pipeline; only the contract and
// a no-op implementation live here.
package chart

import (
	"context"

	"livermore/internal/model"
)

// Renderer produces a chart image URL for a triggered alert. Implementations
// must respect ctx's deadline; the evaluator calls Render with a
// alerts.ChartTimeout (3s) budget and proceeds without an image on timeout
// or error.
type Renderer interface {
	Render(ctx context.Context, symbol string, tf model.Timeframe, candles []model.Candle) (url string, err error)
}

// Disabled is the Renderer used when no chart backend is configured: it
// always returns immediately with no image, so the evaluator proceeds
// without one.
type Disabled struct{}

func (Disabled) Render(ctx context.Context, symbol string, tf model.Timeframe, candles []model.Candle) (string, error) {
	return "", nil
}
