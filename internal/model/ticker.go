package model

// Ticker is the latest trade/quote snapshot for a symbol. Overwritten on
// every trade/ticker event; only the latest value is retained.
type Ticker struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change24h     float64 `json:"change24h"`
	ChangePct24h  float64 `json:"changePct24h"`
	Volume24h     float64 `json:"volume24h"`
	High24h       float64 `json:"high24h"`
	Low24h        float64 `json:"low24h"`
	Timestamp     int64   `json:"timestamp"`
}
