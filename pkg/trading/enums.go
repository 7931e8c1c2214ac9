package trading

import "fmt"

// SignalType identifies which crossing condition fired
type SignalType string

const (
	SignalBBBreakoutUp        SignalType = "bb_breakout_up"
	SignalBBBreakoutDown      SignalType = "bb_breakout_down"
	SignalBBMeanReversionUp   SignalType = "bb_mean_reversion_up"
	SignalBBMeanReversionDown SignalType = "bb_mean_reversion_down"
	SignalVWAPCrossUp         SignalType = "vwap_cross_up"
	SignalVWAPCrossDown       SignalType = "vwap_cross_down"
	SignalCustom              SignalType = "custom"
)

// SignalTypes lists every signal type in detector check order
var SignalTypes = []SignalType{
	SignalBBBreakoutUp,
	SignalBBBreakoutDown,
	SignalBBMeanReversionUp,
	SignalBBMeanReversionDown,
	SignalVWAPCrossUp,
	SignalVWAPCrossDown,
	SignalCustom,
}

// Valid reports whether t is a known signal type
func (t SignalType) Valid() bool {
	switch t {
	case SignalBBBreakoutUp, SignalBBBreakoutDown,
		SignalBBMeanReversionUp, SignalBBMeanReversionDown,
		SignalVWAPCrossUp, SignalVWAPCrossDown, SignalCustom:
		return true
	}
	return false
}

// DisplayName returns the human-readable name
func (t SignalType) DisplayName() string {
	switch t {
	case SignalBBBreakoutUp:
		return "BB Breakout Up"
	case SignalBBBreakoutDown:
		return "BB Breakout Down"
	case SignalBBMeanReversionUp:
		return "BB Mean Reversion Up"
	case SignalBBMeanReversionDown:
		return "BB Mean Reversion Down"
	case SignalVWAPCrossUp:
		return "VWAP Cross Up"
	case SignalVWAPCrossDown:
		return "VWAP Cross Down"
	case SignalCustom:
		return "Custom Signal"
	}
	return string(t)
}

// OrderSide is buy or sell
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Valid reports whether s is buy or sell
func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderStatus is the order lifecycle state
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderFilled    OrderStatus = "filled"
	OrderPartial   OrderStatus = "partial"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
)

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderSubmitted, OrderFilled, OrderPartial, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// IsWorking reports whether the order is still awaiting a final fill
func (s OrderStatus) IsWorking() bool {
	switch s {
	case OrderPending, OrderSubmitted, OrderPartial:
		return true
	case OrderFilled, OrderCancelled, OrderRejected:
		return false
	}
	return false
}

// OptionType is call or put
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// Valid reports whether o is call or put
func (o OptionType) Valid() bool {
	return o == OptionCall || o == OptionPut
}

// OptionStrategy is the option structure a rule trades
type OptionStrategy string

const (
	StrategyBuyCall        OptionStrategy = "buy_call"
	StrategyBuyPut         OptionStrategy = "buy_put"
	StrategySellCall       OptionStrategy = "sell_call"
	StrategySellPut        OptionStrategy = "sell_put"
	StrategyBullCallSpread OptionStrategy = "bull_call_spread"
	StrategyBearPutSpread  OptionStrategy = "bear_put_spread"
	StrategyIronCondor     OptionStrategy = "iron_condor"
	StrategyStraddle       OptionStrategy = "straddle"
	StrategyStrangle       OptionStrategy = "strangle"
)

// Valid reports whether s is a known strategy
func (s OptionStrategy) Valid() bool {
	switch s {
	case StrategyBuyCall, StrategyBuyPut, StrategySellCall, StrategySellPut,
		StrategyBullCallSpread, StrategyBearPutSpread,
		StrategyIronCondor, StrategyStraddle, StrategyStrangle:
		return true
	}
	return false
}

// DisplayName returns the human-readable name
func (s OptionStrategy) DisplayName() string {
	switch s {
	case StrategyBuyCall:
		return "Buy Call"
	case StrategyBuyPut:
		return "Buy Put"
	case StrategySellCall:
		return "Sell Call"
	case StrategySellPut:
		return "Sell Put"
	case StrategyBullCallSpread:
		return "Bull Call Spread"
	case StrategyBearPutSpread:
		return "Bear Put Spread"
	case StrategyIronCondor:
		return "Iron Condor"
	case StrategyStraddle:
		return "Straddle"
	case StrategyStrangle:
		return "Strangle"
	}
	return string(s)
}

// OptionType returns the single-leg option type of the strategy.
// Multi-leg neutral structures (iron condor, straddle, strangle) return false.
func (s OptionStrategy) OptionType() (OptionType, bool) {
	switch s {
	case StrategyBuyCall, StrategySellCall, StrategyBullCallSpread:
		return OptionCall, true
	case StrategyBuyPut, StrategySellPut, StrategyBearPutSpread:
		return OptionPut, true
	case StrategyIronCondor, StrategyStraddle, StrategyStrangle:
		return "", false
	}
	return "", false
}

// Side returns the opening side: debit structures buy, credit structures sell
func (s OptionStrategy) Side() OrderSide {
	switch s {
	case StrategySellCall, StrategySellPut, StrategyIronCondor:
		return SideSell
	case StrategyBuyCall, StrategyBuyPut, StrategyBullCallSpread, StrategyBearPutSpread,
		StrategyStraddle, StrategyStrangle:
		return SideBuy
	}
	return SideBuy
}

// ParseSignalType parses and validates a signal type string
func ParseSignalType(s string) (SignalType, error) {
	t := SignalType(s)
	if !t.Valid() {
		return "", &ValidationError{Field: "signal_type", Value: s, Message: "unknown signal type"}
	}
	return t, nil
}

// ParseOptionStrategy parses and validates an option strategy string
func ParseOptionStrategy(s string) (OptionStrategy, error) {
	o := OptionStrategy(s)
	if !o.Valid() {
		return "", &ValidationError{Field: "option_strategy", Value: s, Message: "unknown option strategy"}
	}
	return o, nil
}

// ParseOrderSide parses and validates an order side string
func ParseOrderSide(s string) (OrderSide, error) {
	side := OrderSide(s)
	if !side.Valid() {
		return "", &ValidationError{Field: "side", Value: s, Message: fmt.Sprintf("must be %q or %q", SideBuy, SideSell)}
	}
	return side, nil
}
