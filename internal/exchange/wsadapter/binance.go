package wsadapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"livermore/internal/exchange"
)

// binanceTradeFrame mirrors Binance's combined-stream trade payload,
// adapted from internal/exchanges/binance.go's BinanceTradeData.
type binanceTradeFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		Price     string `json:"p"`
		Quantity  string `json:"q"`
	} `json:"data"`
}

// binanceTickerFrame mirrors Binance's 24hrTicker stream payload.
type binanceTickerFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType    string `json:"e"`
		EventTime    int64  `json:"E"`
		Symbol       string `json:"s"`
		PriceChange  string `json:"p"`
		PriceChgPct  string `json:"P"`
		LastPrice    string `json:"c"`
		HighPrice    string `json:"h"`
		LowPrice     string `json:"l"`
		Volume       string `json:"v"`
	} `json:"data"`
}

// BinanceConfig builds the wsadapter.Config for Binance USD-M futures
// combined trade + ticker streams.
func BinanceConfig() Config {
	return Config{
		Name:     "binance",
		BuildURL: binanceBuildURL,
		Parse:    binanceParse,
	}
}

func binanceBuildURL(symbols []string) string {
	const base = "wss://fstream.binance.com/stream?streams="
	streams := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		lower := strings.ToLower(s)
		streams = append(streams, fmt.Sprintf("%s@trade", lower), fmt.Sprintf("%s@ticker", lower))
	}
	return base + strings.Join(streams, "/")
}

func binanceParse(raw []byte) (*exchange.Trade, *exchange.TickerUpdate, bool) {
	var probe struct {
		Data struct {
			EventType string `json:"e"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, nil, false
	}

	switch probe.Data.EventType {
	case "trade":
		var f binanceTradeFrame
		if decode(raw, &f) != nil {
			return nil, nil, false
		}
		return &exchange.Trade{
			Symbol:      f.Data.Symbol,
			Price:       ParseFloat(f.Data.Price),
			Quantity:    ParseFloat(f.Data.Quantity),
			EventTimeMs: f.Data.EventTime,
		}, nil, true
	case "24hrTicker":
		var f binanceTickerFrame
		if decode(raw, &f) != nil {
			return nil, nil, false
		}
		return nil, &exchange.TickerUpdate{
			Symbol:       f.Data.Symbol,
			Price:        ParseFloat(f.Data.LastPrice),
			Change24h:    ParseFloat(f.Data.PriceChange),
			ChangePct24h: ParseFloat(f.Data.PriceChgPct),
			Volume24h:    ParseFloat(f.Data.Volume),
			High24h:      ParseFloat(f.Data.HighPrice),
			Low24h:       ParseFloat(f.Data.LowPrice),
			EventTimeMs:  f.Data.EventTime,
		}, true
	default:
		return nil, nil, false
	}
}
