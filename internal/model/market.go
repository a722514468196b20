package model

import (
	"strings"
	"time"
)

// Bar represents a single OHLCV candlestick observation.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Valid reports whether the bar's OHLC values are internally consistent:
// low <= min(open, close), high >= max(open, close), high >= low.
func (b Bar) Valid() bool {
	if b.High < b.Low {
		return false
	}
	if b.Low > b.Open || b.Low > b.Close {
		return false
	}
	if b.High < b.Open || b.High < b.Close {
		return false
	}
	return b.Close > 0
}

// MarketRecord holds one fetched time series for a symbol. The bar slice is
// immutable once constructed; a refresh produces a new record.
type MarketRecord struct {
	Symbol    string    `json:"symbol"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Bars      []Bar     `json:"bars"`
}

// LatestBar returns the most recent bar, or false if the record holds none.
func (r *MarketRecord) LatestBar() (Bar, bool) {
	if r == nil || len(r.Bars) == 0 {
		return Bar{}, false
	}
	return r.Bars[len(r.Bars)-1], true
}

// NormalizeSymbol canonicalizes a user-supplied symbol to the uppercase form
// used as the cache identity.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
