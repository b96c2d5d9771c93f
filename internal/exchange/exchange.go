// Package exchange declares the boundary between the pipeline and a live
// market-data feed: connect/disconnect, subscription management, and
// trade/ticker callbacks. internal/exchange/wsadapter supplies the only
// shipped implementation, over a dial/read-loop shape.
package exchange

import "context"

// Trade is one normalized trade print from the feed.
type Trade struct {
	Symbol      string
	Price       float64
	Quantity    float64
	EventTimeMs int64
}

// TickerUpdate is one normalized 24h-ticker snapshot from the feed.
type TickerUpdate struct {
	Symbol       string
	Price        float64
	Change24h    float64
	ChangePct24h float64
	Volume24h    float64
	High24h      float64
	Low24h       float64
	EventTimeMs  int64
}

// Adapter is the live market-data feed contract the candle aggregator and
// ticker store consume. Connect makes one connection attempt and returns
// its error; reconnecting with backoff is the caller's job (internal/app's
// supervised connection loop).
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect() error
	// Subscribe replaces the adapter's symbol subscription list. Called
	// again on add-symbol/remove-symbol/bulk-add-symbols and on resume.
	Subscribe(ctx context.Context, symbols []string) error
	OnTrade(fn func(Trade))
	OnTicker(fn func(TickerUpdate))
}
