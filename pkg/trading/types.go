// Package trading holds the domain model shared by the indicator, signal,
// rules, ledger and storage packages.
package trading

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick represents a single price/volume observation for a symbol
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"` // last/close price
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Bands is a Bollinger Bands snapshot
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Snapshot is the last-seen state of a symbol, kept between ticks so the
// detector can compare current against previous.
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Bands     *Bands    `json:"bands,omitempty"`
	VWAP      float64   `json:"vwap"`
	Timestamp time.Time `json:"timestamp"`
}

// Signal is a detected crossing/breakout event at a specific tick
type Signal struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	WatchlistID   *string          `json:"watchlist_id"`
	SignalRuleID  *string          `json:"signal_rule_id"`
	Symbol        string           `json:"symbol"`
	Type          SignalType       `json:"signal_type"`
	PriceAtSignal decimal.Decimal  `json:"price_at_signal"`
	BBUpper       *decimal.Decimal `json:"bb_upper"`
	BBMiddle      *decimal.Decimal `json:"bb_middle"`
	BBLower       *decimal.Decimal `json:"bb_lower"`
	VWAP          *decimal.Decimal `json:"vwap"`
	Volume        *decimal.Decimal `json:"volume"`
	TriggeredAt   time.Time        `json:"triggered_at"`
	Executed      bool             `json:"executed"`
}

// SignalRule maps a signal type to an option strategy and sizing parameters
type SignalRule struct {
	ID                  string           `json:"id" yaml:"-"`
	UserID              string           `json:"user_id" yaml:"-"`
	Name                string           `json:"name" yaml:"name"`
	SignalType          SignalType       `json:"signal_type" yaml:"signal_type"`
	Enabled             bool             `json:"enabled" yaml:"enabled"`
	OptionStrategy      OptionStrategy   `json:"option_strategy" yaml:"option_strategy"`
	StrikeOffsetPercent decimal.Decimal  `json:"strike_offset_percent" yaml:"strike_offset_percent"`
	ExpiryDays          int              `json:"expiry_days" yaml:"expiry_days"`
	PositionSizePercent decimal.Decimal  `json:"position_size_percent" yaml:"position_size_percent"`
	MaxPositionValue    decimal.Decimal  `json:"max_position_value" yaml:"max_position_value"`
	TrailingStopPercent *decimal.Decimal `json:"trailing_stop_percent" yaml:"trailing_stop_percent,omitempty"`
	StopLossPercent     *decimal.Decimal `json:"stop_loss_percent" yaml:"stop_loss_percent,omitempty"`
	TakeProfitPercent   *decimal.Decimal `json:"take_profit_percent" yaml:"take_profit_percent,omitempty"`
	CreatedAt           time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt           time.Time        `json:"updated_at" yaml:"-"`
}

// Order is a filled or working order. Paper orders are created already filled.
type Order struct {
	ID                  string           `json:"id"`
	UserID              string           `json:"user_id"`
	SignalID            *string          `json:"signal_id"`
	Symbol              string           `json:"symbol"`
	OptionType          *OptionType      `json:"option_type"`
	Strike              *decimal.Decimal `json:"strike"`
	Expiry              *time.Time       `json:"expiry"`
	Side                OrderSide        `json:"side"`
	Quantity            int64            `json:"quantity"`
	LimitPrice          *decimal.Decimal `json:"limit_price"`
	FilledPrice         *decimal.Decimal `json:"filled_price"`
	Status              OrderStatus      `json:"status"`
	Strategy            *OptionStrategy  `json:"strategy"`
	TrailingStopPercent *decimal.Decimal `json:"trailing_stop_percent"`
	StopLossPrice       *decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice     *decimal.Decimal `json:"take_profit_price"`
	IsPaperTrade        bool             `json:"is_paper_trade"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	FilledAt            *time.Time       `json:"filled_at"`
}

// Position is an open or closed holding resulting from a filled buy order
type Position struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	OrderID           *string          `json:"order_id"`
	Symbol            string           `json:"symbol"`
	OptionType        *OptionType      `json:"option_type"`
	Strike            *decimal.Decimal `json:"strike"`
	Expiry            *time.Time       `json:"expiry"`
	Quantity          int64            `json:"quantity"`
	AvgCost           decimal.Decimal  `json:"avg_cost"`
	CurrentPrice      *decimal.Decimal `json:"current_price"`
	UnrealizedPnL     *decimal.Decimal `json:"unrealized_pnl"`
	TrailingStopPrice *decimal.Decimal `json:"trailing_stop_price"`
	StopLossPrice     *decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice   *decimal.Decimal `json:"take_profit_price"`
	IsOpen            bool             `json:"is_open"`
	IsPaperTrade      bool             `json:"is_paper_trade"`
	OpenedAt          time.Time        `json:"opened_at"`
	ClosedAt          *time.Time       `json:"closed_at"`
}

// MarketValue returns quantity × current price, falling back to avg cost
func (p *Position) MarketValue() decimal.Decimal {
	price := p.AvgCost
	if p.CurrentPrice != nil {
		price = *p.CurrentPrice
	}
	return price.Mul(decimal.NewFromInt(p.Quantity))
}

// PaperTrade is an append-only ledger entry
type PaperTrade struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	PositionID   *string          `json:"position_id"`
	OrderID      *string          `json:"order_id"`
	Symbol       string           `json:"symbol"`
	Side         OrderSide        `json:"side"`
	Quantity     int64            `json:"quantity"`
	Price        decimal.Decimal  `json:"price"`
	TotalValue   decimal.Decimal  `json:"total_value"`
	Commission   decimal.Decimal  `json:"commission"`
	RealizedPnL  *decimal.Decimal `json:"realized_pnl"`
	BalanceAfter decimal.Decimal  `json:"balance_after"`
	ExecutedAt   time.Time        `json:"executed_at"`
}

// TradingSettings is the per-user singleton holding the paper balance and
// auto-trading limits.
type TradingSettings struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id"`
	AutoTradeEnabled    bool            `json:"auto_trade_enabled"`
	MaxDailyTrades      int             `json:"max_daily_trades"`
	MaxDailyLoss        decimal.Decimal `json:"max_daily_loss"`
	MaxPositionSize     decimal.Decimal `json:"max_position_size"`
	TradingHoursStart   string          `json:"trading_hours_start"` // HH:MM
	TradingHoursEnd     string          `json:"trading_hours_end"`   // HH:MM
	PaperTradingEnabled bool            `json:"paper_trading_enabled"`
	PaperTradingBalance decimal.Decimal `json:"paper_trading_balance"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// WatchlistItem drives which symbols feed the indicator engine
type WatchlistItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Symbol      string    `json:"symbol"`
	Enabled     bool      `json:"enabled"`
	BBPeriod    int       `json:"bb_period"`
	BBStdDev    float64   `json:"bb_std_dev"`
	VWAPEnabled bool      `json:"vwap_enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
