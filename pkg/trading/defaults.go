package trading

import (
	"time"

	"github.com/shopspring/decimal"
)

// Defaults applied to new records
var (
	DefaultPaperBalance     = decimal.NewFromInt(100000)
	DefaultMaxDailyTrades   = 10
	DefaultMaxDailyLoss     = decimal.NewFromInt(500)
	DefaultMaxPositionSize  = decimal.NewFromInt(5000)
	DefaultTradingHoursFrom = "09:30"
	DefaultTradingHoursTo   = "16:00"

	DefaultStrikeOffsetPercent = decimal.NewFromInt(2)
	DefaultExpiryDays          = 7
	DefaultPositionSizePercent = decimal.NewFromInt(5)
	DefaultMaxPositionValue    = decimal.NewFromInt(1000)

	DefaultWatchBBPeriod = 20
	DefaultWatchBBStdDev = 2.0
)

// NewSettings returns the settings row created for a user on first use
func NewSettings(userID string, balance decimal.Decimal, now time.Time) *TradingSettings {
	return &TradingSettings{
		UserID:              userID,
		AutoTradeEnabled:    false,
		MaxDailyTrades:      DefaultMaxDailyTrades,
		MaxDailyLoss:        DefaultMaxDailyLoss,
		MaxPositionSize:     DefaultMaxPositionSize,
		TradingHoursStart:   DefaultTradingHoursFrom,
		TradingHoursEnd:     DefaultTradingHoursTo,
		PaperTradingEnabled: true,
		PaperTradingBalance: balance,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// NewSignalRule returns a rule with default sizing and strike parameters
func NewSignalRule(userID, name string, t SignalType, strategy OptionStrategy) *SignalRule {
	return &SignalRule{
		UserID:              userID,
		Name:                name,
		SignalType:          t,
		Enabled:             true,
		OptionStrategy:      strategy,
		StrikeOffsetPercent: DefaultStrikeOffsetPercent,
		ExpiryDays:          DefaultExpiryDays,
		PositionSizePercent: DefaultPositionSizePercent,
		MaxPositionValue:    DefaultMaxPositionValue,
	}
}

// NewWatchlistItem returns an enabled item with the default indicator window
func NewWatchlistItem(userID, symbol string) *WatchlistItem {
	return &WatchlistItem{
		UserID:      userID,
		Symbol:      symbol,
		Enabled:     true,
		BBPeriod:    DefaultWatchBBPeriod,
		BBStdDev:    DefaultWatchBBStdDev,
		VWAPEnabled: true,
	}
}

// Validate checks a rule's fields
func (r *SignalRule) Validate() error {
	switch {
	case r.Name == "":
		return &ValidationError{Field: "name", Message: "is required"}
	case !r.SignalType.Valid():
		return &ValidationError{Field: "signal_type", Value: string(r.SignalType), Message: "unknown signal type"}
	case !r.OptionStrategy.Valid():
		return &ValidationError{Field: "option_strategy", Value: string(r.OptionStrategy), Message: "unknown option strategy"}
	case r.StrikeOffsetPercent.IsNegative():
		return &ValidationError{Field: "strike_offset_percent", Value: r.StrikeOffsetPercent.String(), Message: "must not be negative"}
	case r.ExpiryDays < 0:
		return &ValidationError{Field: "expiry_days", Message: "must not be negative"}
	case !r.PositionSizePercent.IsPositive() || r.PositionSizePercent.GreaterThan(decimal.NewFromInt(100)):
		return &ValidationError{Field: "position_size_percent", Value: r.PositionSizePercent.String(), Message: "must be in (0, 100]"}
	case !r.MaxPositionValue.IsPositive():
		return &ValidationError{Field: "max_position_value", Value: r.MaxPositionValue.String(), Message: "must be positive"}
	}
	for field, p := range map[string]*decimal.Decimal{
		"trailing_stop_percent": r.TrailingStopPercent,
		"stop_loss_percent":     r.StopLossPercent,
		"take_profit_percent":   r.TakeProfitPercent,
	} {
		if p != nil && !p.IsPositive() {
			return &ValidationError{Field: field, Value: p.String(), Message: "must be positive"}
		}
	}
	return nil
}

// Validate checks a watchlist item's fields
func (w *WatchlistItem) Validate() error {
	switch {
	case w.Symbol == "":
		return &ValidationError{Field: "symbol", Message: "is required"}
	case w.BBPeriod < 2:
		return &ValidationError{Field: "bb_period", Message: "must be at least 2"}
	case w.BBStdDev <= 0:
		return &ValidationError{Field: "bb_std_dev", Message: "must be positive"}
	}
	return nil
}

// Validate checks a settings row
func (s *TradingSettings) Validate() error {
	if s.MaxDailyTrades < 0 {
		return &ValidationError{Field: "max_daily_trades", Message: "must not be negative"}
	}
	if s.MaxDailyLoss.IsNegative() {
		return &ValidationError{Field: "max_daily_loss", Value: s.MaxDailyLoss.String(), Message: "must not be negative"}
	}
	if s.MaxPositionSize.IsNegative() {
		return &ValidationError{Field: "max_position_size", Value: s.MaxPositionSize.String(), Message: "must not be negative"}
	}
	if s.PaperTradingBalance.IsNegative() {
		return &ValidationError{Field: "paper_trading_balance", Value: s.PaperTradingBalance.String(), Message: "must not be negative"}
	}
	start, err := ParseClock(s.TradingHoursStart)
	if err != nil {
		return &ValidationError{Field: "trading_hours_start", Value: s.TradingHoursStart, Message: "must be HH:MM"}
	}
	end, err := ParseClock(s.TradingHoursEnd)
	if err != nil {
		return &ValidationError{Field: "trading_hours_end", Value: s.TradingHoursEnd, Message: "must be HH:MM"}
	}
	if end <= start {
		return &ValidationError{Field: "trading_hours_end", Value: s.TradingHoursEnd, Message: "must be after trading_hours_start"}
	}
	return nil
}

// ParseClock parses an HH:MM string into minutes after midnight
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// WithinHours reports whether t falls inside [start, end) in t's location
func (s *TradingSettings) WithinHours(t time.Time) bool {
	start, err := ParseClock(s.TradingHoursStart)
	if err != nil {
		return false
	}
	end, err := ParseClock(s.TradingHoursEnd)
	if err != nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	return m >= start && m < end
}
