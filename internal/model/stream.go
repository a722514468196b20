package model

import "time"

// StreamingPoint is one derived observation per symbol per polling tick.
// Ephemeral: held only in the streaming buffer, never persisted by the cache.
type StreamingPoint struct {
	Symbol        string    `json:"symbol"`
	Timestamp     time.Time `json:"timestamp"`
	Price         float64   `json:"price"`
	Volume        float64   `json:"volume"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Source        string    `json:"source"`
}

// AlertKind names the direction of a price threshold.
type AlertKind string

const (
	AlertAbove AlertKind = "above"
	AlertBelow AlertKind = "below"
)

// FiredAlert records the thresholds a symbol crossed on a single tick.
type FiredAlert struct {
	Symbol    string                `json:"symbol"`
	Timestamp time.Time             `json:"timestamp"`
	Price     float64               `json:"price"`
	Triggered map[AlertKind]float64 `json:"triggered"`
}
