package signal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// Event describes one detected signal on one tick, before it is bound to a
// rule and persisted.
type Event struct {
	UserID      string
	WatchlistID string
	Type        trading.SignalType
	Tick        trading.Tick
	Bands       *trading.Bands
	VWAP        float64
	VWAPEnabled bool
}

// NewRecord builds the persisted Signal row for an event. ruleID may be
// empty when no rule matched.
func NewRecord(ev Event, ruleID string) *trading.Signal {
	sig := &trading.Signal{
		ID:            uuid.New().String(),
		UserID:        ev.UserID,
		Symbol:        ev.Tick.Symbol,
		Type:          ev.Type,
		PriceAtSignal: decimal.NewFromFloat(ev.Tick.Price),
		TriggeredAt:   ev.Tick.Timestamp,
	}
	if sig.TriggeredAt.IsZero() {
		sig.TriggeredAt = time.Now()
	}

	if ev.WatchlistID != "" {
		id := ev.WatchlistID
		sig.WatchlistID = &id
	}
	if ruleID != "" {
		id := ruleID
		sig.SignalRuleID = &id
	}

	if ev.Bands != nil {
		sig.BBUpper = decimalPtr(ev.Bands.Upper)
		sig.BBMiddle = decimalPtr(ev.Bands.Middle)
		sig.BBLower = decimalPtr(ev.Bands.Lower)
	}
	if ev.VWAPEnabled {
		sig.VWAP = decimalPtr(ev.VWAP)
	}
	if ev.Tick.Volume > 0 {
		sig.Volume = decimalPtr(ev.Tick.Volume)
	}

	return sig
}

func decimalPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}
