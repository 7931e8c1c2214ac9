// Package rules turns a fired signal into sized trade intents using the
// user's signal rules.
package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/ledger"
)

var hundred = decimal.NewFromInt(100)

// Account carries the sizing inputs for one user
type Account struct {
	Balance decimal.Decimal

	// MaxPositionSize caps any single position's value. Zero means no cap
	// beyond the rule's own max_position_value.
	MaxPositionSize decimal.Decimal
}

// Intent is a sized order derived from one rule
type Intent struct {
	Rule   *trading.SignalRule
	Signal *trading.Signal

	Symbol     string
	Side       trading.OrderSide
	Strategy   trading.OptionStrategy
	OptionType *trading.OptionType
	Strike     decimal.Decimal
	Expiry     time.Time

	// UnitPrice is the estimated premium per contract
	UnitPrice     decimal.Decimal
	Quantity      int64
	PositionValue decimal.Decimal

	TrailingStopPercent *decimal.Decimal
	TrailingStopPrice   *decimal.Decimal
	StopLossPrice       *decimal.Decimal
	TakeProfitPrice     *decimal.Decimal
}

// TradeRequest converts the intent into a ledger request for userID
func (in *Intent) TradeRequest(userID string) ledger.TradeRequest {
	strategy := in.Strategy
	strike := in.Strike
	expiry := in.Expiry

	req := ledger.TradeRequest{
		UserID:              userID,
		Symbol:              in.Symbol,
		Side:                in.Side,
		Quantity:            in.Quantity,
		Price:               in.UnitPrice,
		Strategy:            &strategy,
		OptionType:          in.OptionType,
		Strike:              &strike,
		Expiry:              &expiry,
		TrailingStopPercent: in.TrailingStopPercent,
		TrailingStopPrice:   in.TrailingStopPrice,
		StopLossPrice:       in.StopLossPrice,
		TakeProfitPrice:     in.TakeProfitPrice,
	}
	if in.Signal != nil && in.Signal.ID != "" {
		id := in.Signal.ID
		req.SignalID = &id
	}
	return req
}

// Matcher sizes intents for signals
type Matcher struct {
	premium PremiumEstimator
}

// NewMatcher creates a matcher. A nil estimator uses DefaultPremium.
func NewMatcher(premium PremiumEstimator) *Matcher {
	if premium == nil {
		premium = DefaultPremium()
	}
	return &Matcher{premium: premium}
}

// Filter returns the enabled rules for signal type t, keeping input order
func Filter(rules []*trading.SignalRule, t trading.SignalType) []*trading.SignalRule {
	out := make([]*trading.SignalRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled && r.SignalType == t {
			out = append(out, r)
		}
	}
	return out
}

// PositionValue is min(balance × size% / 100, rule max), further capped by
// the account's MaxPositionSize when set
func PositionValue(acct Account, rule *trading.SignalRule) decimal.Decimal {
	v := acct.Balance.Mul(rule.PositionSizePercent).Div(hundred)
	v = decimal.Min(v, rule.MaxPositionValue)
	if acct.MaxPositionSize.IsPositive() {
		v = decimal.Min(v, acct.MaxPositionSize)
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Quantity is floor(positionValue / unitPrice), or 0 for a non-positive
// unit price
func Quantity(positionValue, unitPrice decimal.Decimal) int64 {
	if !unitPrice.IsPositive() {
		return 0
	}
	return positionValue.Div(unitPrice).Floor().IntPart()
}

// Strike offsets the underlying price by the rule's percentage: up for calls,
// down for puts, at the money for multi-leg strategies. Rounded to cents.
func Strike(underlying decimal.Decimal, rule *trading.SignalRule) decimal.Decimal {
	offset := rule.StrikeOffsetPercent.Div(hundred)
	ot, ok := rule.OptionStrategy.OptionType()
	switch {
	case !ok:
		return underlying.Round(2)
	case ot == trading.OptionCall:
		return underlying.Mul(decimal.NewFromInt(1).Add(offset)).Round(2)
	default:
		return underlying.Mul(decimal.NewFromInt(1).Sub(offset)).Round(2)
	}
}

// Expiry is the calendar date expiry_days after triggeredAt, at midnight in
// triggeredAt's location
func Expiry(triggeredAt time.Time, rule *trading.SignalRule) time.Time {
	t := triggeredAt.AddDate(0, 0, rule.ExpiryDays)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Stops derives stop-loss, take-profit and trailing-stop prices from the
// entry premium. For credit (sell-side) strategies the directions invert.
func Stops(entry decimal.Decimal, side trading.OrderSide, rule *trading.SignalRule) (stopLoss, takeProfit, trailing *decimal.Decimal) {
	one := decimal.NewFromInt(1)
	below := func(pct *decimal.Decimal) *decimal.Decimal {
		v := entry.Mul(one.Sub(pct.Div(hundred))).Round(2)
		return &v
	}
	above := func(pct *decimal.Decimal) *decimal.Decimal {
		v := entry.Mul(one.Add(pct.Div(hundred))).Round(2)
		return &v
	}

	long := side == trading.SideBuy
	if rule.StopLossPercent != nil {
		if long {
			stopLoss = below(rule.StopLossPercent)
		} else {
			stopLoss = above(rule.StopLossPercent)
		}
	}
	if rule.TakeProfitPercent != nil {
		if long {
			takeProfit = above(rule.TakeProfitPercent)
		} else {
			takeProfit = below(rule.TakeProfitPercent)
		}
	}
	if rule.TrailingStopPercent != nil {
		if long {
			trailing = below(rule.TrailingStopPercent)
		} else {
			trailing = above(rule.TrailingStopPercent)
		}
	}
	return stopLoss, takeProfit, trailing
}

// Intent sizes one rule against a signal. It returns nil when the rule does
// not apply to the signal or the sized quantity is below one contract.
func (m *Matcher) Intent(sig *trading.Signal, rule *trading.SignalRule, acct Account) (*Intent, error) {
	if !rule.Enabled || rule.SignalType != sig.Type {
		return nil, nil
	}

	strike := Strike(sig.PriceAtSignal, rule)
	unit, err := m.premium.Premium(sig.Symbol, sig.PriceAtSignal, strike, rule)
	if err != nil {
		return nil, err
	}

	value := PositionValue(acct, rule)
	qty := Quantity(value, unit)
	if qty < 1 {
		return nil, nil
	}

	side := rule.OptionStrategy.Side()
	in := &Intent{
		Rule:          rule,
		Signal:        sig,
		Symbol:        sig.Symbol,
		Side:          side,
		Strategy:      rule.OptionStrategy,
		Strike:        strike,
		Expiry:        Expiry(sig.TriggeredAt, rule),
		UnitPrice:     unit,
		Quantity:      qty,
		PositionValue: value,
	}
	if ot, ok := rule.OptionStrategy.OptionType(); ok {
		in.OptionType = &ot
	}
	if rule.TrailingStopPercent != nil {
		pct := *rule.TrailingStopPercent
		in.TrailingStopPercent = &pct
	}
	in.StopLossPrice, in.TakeProfitPrice, in.TrailingStopPrice = Stops(unit, side, rule)

	return in, nil
}

// Match returns one intent per enabled rule of the signal's type that sizes
// to at least one contract
func (m *Matcher) Match(sig *trading.Signal, rules []*trading.SignalRule, acct Account) ([]*Intent, error) {
	var intents []*Intent
	for _, rule := range Filter(rules, sig.Type) {
		in, err := m.Intent(sig, rule, acct)
		if err != nil {
			return nil, err
		}
		if in != nil {
			intents = append(intents, in)
		}
	}
	return intents, nil
}
