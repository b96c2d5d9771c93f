// Package cachekeys builds the deterministic key and channel names shared by
// every subsystem that talks to the cache service. It holds
// no state and performs no I/O — purely string construction, covering the
// full key/channel family this pipeline needs.
package cachekeys

import (
	"fmt"

	"livermore/internal/model"
)

// Scope identifies the (user, exchange, symbol) tuple most cache keys are
// namespaced by. Timeframe is threaded separately since several operations
// (bulk indicator fetch) span timeframes within one scope.
type Scope struct {
	User     string
	Exchange string
	Symbol   string
}

// Candles returns the ordered-set key for a symbol's candle history at tf.
func Candles(s Scope, tf model.Timeframe) string {
	return fmt.Sprintf("candles:%s:%s:%s:%s", s.User, s.Exchange, s.Symbol, tf)
}

// Indicator returns the latest-value key for one (symbol, timeframe, type).
func Indicator(s Scope, tf model.Timeframe, indType string) string {
	return fmt.Sprintf("indicator:%s:%s:%s:%s:%s", s.User, s.Exchange, s.Symbol, tf, indType)
}

// Ticker returns the latest-ticker key for a symbol.
func Ticker(s Scope) string {
	return fmt.Sprintf("ticker:%s:%s:%s", s.User, s.Exchange, s.Symbol)
}

// CandleCloseChannel returns the pub/sub topic announcing a closed bar.
func CandleCloseChannel(s Scope, tf model.Timeframe) string {
	return fmt.Sprintf("channel:candle:close:%s:%s:%s:%s", s.User, s.Exchange, s.Symbol, tf)
}

// CandleClosePattern returns the wildcard pattern the scheduler subscribes
// to for a given base timeframe across every monitored symbol.
func CandleClosePattern(user, exchange string, tf model.Timeframe) string {
	return fmt.Sprintf("channel:candle:close:%s:%s:*:%s", user, exchange, tf)
}

// IndicatorChannel returns the pub/sub topic announcing a recomputed
// indicator value.
func IndicatorChannel(s Scope, tf model.Timeframe, indType string) string {
	return fmt.Sprintf("channel:indicator:%s:%s:%s:%s:%s", s.User, s.Exchange, s.Symbol, tf, indType)
}

// TickerChannel returns the pub/sub topic announcing a ticker update.
func TickerChannel(s Scope) string {
	return fmt.Sprintf("channel:ticker:%s:%s:%s", s.User, s.Exchange, s.Symbol)
}

// AlertChannel returns the per-exchange alert announcement topic.
func AlertChannel(exchange string) string {
	return fmt.Sprintf("channel:alert:%s", exchange)
}

// CommandChannel returns the inbound control-command topic for an identity.
func CommandChannel(identitySub string) string {
	return fmt.Sprintf("livermore:commands:%s", identitySub)
}

// ResponseChannel returns the outbound control-response topic for an identity.
func ResponseChannel(identitySub string) string {
	return fmt.Sprintf("livermore:responses:%s", identitySub)
}

// CommandQueue returns the priority-ordered sorted-set key backing the
// control channel's drain loop.
func CommandQueue(identitySub string) string {
	return fmt.Sprintf("livermore:command-queue:%s", identitySub)
}

// InstanceStatus returns the per-exchange registry lease key.
func InstanceStatus(exchangeID string) string {
	return fmt.Sprintf("exchange:%s:status", exchangeID)
}

// ActivityStream returns the per-exchange activity-log stream key.
func ActivityStream(exchange string) string {
	return fmt.Sprintf("livermore:activity:%s", exchange)
}
