package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// DefaultPremiumPercent is the option premium assumed as a share of the
// underlying price when no option quote is available
var DefaultPremiumPercent = decimal.NewFromInt(2)

var minPremium = decimal.RequireFromString("0.01")

// PremiumEstimator prices one contract of the rule's strategy
type PremiumEstimator interface {
	Premium(symbol string, underlying, strike decimal.Decimal, rule *trading.SignalRule) (decimal.Decimal, error)
}

// PremiumFunc adapts a function to PremiumEstimator
type PremiumFunc func(symbol string, underlying, strike decimal.Decimal, rule *trading.SignalRule) (decimal.Decimal, error)

// Premium calls f
func (f PremiumFunc) Premium(symbol string, underlying, strike decimal.Decimal, rule *trading.SignalRule) (decimal.Decimal, error) {
	return f(symbol, underlying, strike, rule)
}

// PercentOfUnderlying prices a contract at a fixed percentage of the
// underlying, rounded to cents with a one cent floor
type PercentOfUnderlying struct {
	Percent decimal.Decimal
}

// DefaultPremium returns the 2% estimator
func DefaultPremium() PercentOfUnderlying {
	return PercentOfUnderlying{Percent: DefaultPremiumPercent}
}

// Premium implements PremiumEstimator
func (p PercentOfUnderlying) Premium(symbol string, underlying, _ decimal.Decimal, _ *trading.SignalRule) (decimal.Decimal, error) {
	if !underlying.IsPositive() {
		return decimal.Zero, &trading.ValidationError{Field: "price", Value: underlying.String(),
			Message: fmt.Sprintf("cannot price %s option from non-positive underlying", symbol)}
	}
	v := underlying.Mul(p.Percent).Div(hundred).Round(2)
	return decimal.Max(v, minPremium), nil
}
