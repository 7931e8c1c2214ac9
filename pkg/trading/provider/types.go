// Package provider adapts market data sources (a simulated feed, Alpaca and
// generic WebSocket streams) to ticks for the signal engine.
package provider

import (
	"fmt"
	"time"
)

// Quote represents a real-time stock quote
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        float64   `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	PrevClose     float64   `json:"prev_close"`
}

// Interval represents the bar size for historical data
type Interval string

const (
	Interval1Min  Interval = "1min"
	Interval5Min  Interval = "5min"
	Interval15Min Interval = "15min"
	Interval60Min Interval = "60min"
	IntervalDaily Interval = "daily"
)

// Duration returns the bar length
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval5Min:
		return 5 * time.Minute
	case Interval15Min:
		return 15 * time.Minute
	case Interval60Min:
		return time.Hour
	case IntervalDaily:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// ParseInterval validates an interval string
func ParseInterval(s string) (Interval, error) {
	switch i := Interval(s); i {
	case Interval1Min, Interval5Min, Interval15Min, Interval60Min, IntervalDaily:
		return i, nil
	case "":
		return Interval1Min, nil
	default:
		return "", fmt.Errorf("unknown interval %q", s)
	}
}
