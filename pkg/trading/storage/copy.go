package storage

import (
	"github.com/xinguang/signaldesk/pkg/trading"
)

// Records are copied on the way in and on the way out so that callers never
// share pointer fields with stored state.

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyOrder(o trading.Order) trading.Order {
	o.SignalID = clonePtr(o.SignalID)
	o.OptionType = clonePtr(o.OptionType)
	o.Strike = clonePtr(o.Strike)
	o.Expiry = clonePtr(o.Expiry)
	o.LimitPrice = clonePtr(o.LimitPrice)
	o.FilledPrice = clonePtr(o.FilledPrice)
	o.Strategy = clonePtr(o.Strategy)
	o.TrailingStopPercent = clonePtr(o.TrailingStopPercent)
	o.StopLossPrice = clonePtr(o.StopLossPrice)
	o.TakeProfitPrice = clonePtr(o.TakeProfitPrice)
	o.FilledAt = clonePtr(o.FilledAt)
	return o
}

func copyPosition(p trading.Position) trading.Position {
	p.OrderID = clonePtr(p.OrderID)
	p.OptionType = clonePtr(p.OptionType)
	p.Strike = clonePtr(p.Strike)
	p.Expiry = clonePtr(p.Expiry)
	p.CurrentPrice = clonePtr(p.CurrentPrice)
	p.UnrealizedPnL = clonePtr(p.UnrealizedPnL)
	p.TrailingStopPrice = clonePtr(p.TrailingStopPrice)
	p.StopLossPrice = clonePtr(p.StopLossPrice)
	p.TakeProfitPrice = clonePtr(p.TakeProfitPrice)
	p.ClosedAt = clonePtr(p.ClosedAt)
	return p
}

func copyTrade(t trading.PaperTrade) trading.PaperTrade {
	t.PositionID = clonePtr(t.PositionID)
	t.OrderID = clonePtr(t.OrderID)
	t.RealizedPnL = clonePtr(t.RealizedPnL)
	return t
}

func copySignal(s trading.Signal) trading.Signal {
	s.WatchlistID = clonePtr(s.WatchlistID)
	s.SignalRuleID = clonePtr(s.SignalRuleID)
	s.BBUpper = clonePtr(s.BBUpper)
	s.BBMiddle = clonePtr(s.BBMiddle)
	s.BBLower = clonePtr(s.BBLower)
	s.VWAP = clonePtr(s.VWAP)
	s.Volume = clonePtr(s.Volume)
	return s
}

func copyRule(r trading.SignalRule) trading.SignalRule {
	r.TrailingStopPercent = clonePtr(r.TrailingStopPercent)
	r.StopLossPercent = clonePtr(r.StopLossPercent)
	r.TakeProfitPercent = clonePtr(r.TakeProfitPercent)
	return r
}
