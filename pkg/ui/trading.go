package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/ledger"
	"github.com/xinguang/signaldesk/pkg/trading/provider"
)

// Now is the clock used for ages and expiries
var Now = time.Now

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func price(d decimal.Decimal) string {
	return trading.FormatPrice(&d)
}

// pnl renders a signed dollar amount in green or red
func (p *Printer) pnl(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	s := trading.FormatPrice(d)
	switch {
	case d.IsPositive():
		return p.color(BrightGreen, "+"+s)
	case d.IsNegative():
		return p.color(BrightRed, s)
	}
	return s
}

func (p *Printer) side(s trading.OrderSide) string {
	if s == trading.SideBuy {
		return p.color(Green, string(s))
	}
	return p.color(Red, string(s))
}

func optionLabel(ot *trading.OptionType, strike *decimal.Decimal, expiry *time.Time) string {
	if ot == nil && strike == nil {
		return "-"
	}
	s := ""
	if strike != nil {
		s = strike.StringFixed(2)
	}
	if ot != nil {
		s += string(*ot)[:1]
	}
	if expiry != nil {
		s += " " + expiry.Format("01/02")
	}
	return s
}

func (p *Printer) empty(what string) {
	p.println(p.color(Dim, "No "+what+" found."))
}

// Positions prints positions, open or closed
func (p *Printer) Positions(positions []*trading.Position) {
	if len(positions) == 0 {
		p.empty("positions")
		return
	}
	rows := make([][]string, 0, len(positions))
	for _, pos := range positions {
		status := p.color(Green, "open")
		opened := formatAge(pos.OpenedAt, Now())
		if !pos.IsOpen {
			status = p.color(Gray, "closed")
			if pos.ClosedAt != nil {
				opened = formatAge(*pos.ClosedAt, Now())
			}
		}
		current := "-"
		if pos.CurrentPrice != nil {
			current = price(*pos.CurrentPrice)
		}
		rows = append(rows, []string{
			p.color(BrightCyan, shortID(pos.ID)),
			pos.Symbol,
			optionLabel(pos.OptionType, pos.Strike, pos.Expiry),
			strconv.FormatInt(pos.Quantity, 10),
			price(pos.AvgCost),
			current,
			p.pnl(pos.UnrealizedPnL),
			status,
			opened,
		})
	}
	p.Table([]string{"ID", "SYMBOL", "OPTION", "QTY", "AVG COST", "PRICE", "P&L", "STATUS", "AGE"}, rows)
}

// Orders prints orders
func (p *Printer) Orders(orders []*trading.Order) {
	if len(orders) == 0 {
		p.empty("orders")
		return
	}
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		strategy := "-"
		if o.Strategy != nil {
			strategy = o.Strategy.DisplayName()
		}
		filled := "-"
		if o.FilledPrice != nil {
			filled = price(*o.FilledPrice)
		}
		kind := "live"
		if o.IsPaperTrade {
			kind = "paper"
		}
		rows = append(rows, []string{
			p.color(BrightCyan, shortID(o.ID)),
			o.Symbol,
			p.side(o.Side),
			strconv.FormatInt(o.Quantity, 10),
			filled,
			strategy,
			string(o.Status),
			kind,
			o.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	p.Table([]string{"ID", "SYMBOL", "SIDE", "QTY", "FILLED", "STRATEGY", "STATUS", "TYPE", "CREATED"}, rows)
}

// Trades prints paper trades
func (p *Printer) Trades(trades []*trading.PaperTrade) {
	if len(trades) == 0 {
		p.empty("paper trades")
		return
	}
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			t.ExecutedAt.Format("2006-01-02 15:04"),
			t.Symbol,
			p.side(t.Side),
			strconv.FormatInt(t.Quantity, 10),
			price(t.Price),
			price(t.TotalValue),
			price(t.Commission),
			p.pnl(t.RealizedPnL),
			price(t.BalanceAfter),
		})
	}
	p.Table([]string{"EXECUTED", "SYMBOL", "SIDE", "QTY", "PRICE", "TOTAL", "COMM", "REALIZED", "BALANCE"}, rows)
}

// Signals prints signals
func (p *Printer) Signals(signals []*trading.Signal) {
	if len(signals) == 0 {
		p.empty("signals")
		return
	}
	rows := make([][]string, 0, len(signals))
	for _, s := range signals {
		executed := p.color(Gray, "no")
		if s.Executed {
			executed = p.color(Green, IconSuccess)
		}
		rows = append(rows, []string{
			s.TriggeredAt.Format("2006-01-02 15:04:05"),
			s.Symbol,
			p.signalType(s.Type),
			price(s.PriceAtSignal),
			trading.FormatPrice(s.BBUpper),
			trading.FormatPrice(s.BBLower),
			trading.FormatPrice(s.VWAP),
			executed,
		})
	}
	p.Table([]string{"TRIGGERED", "SYMBOL", "SIGNAL", "PRICE", "BB UPPER", "BB LOWER", "VWAP", "EXECUTED"}, rows)
}

func (p *Printer) signalType(t trading.SignalType) string {
	switch t {
	case trading.SignalBBBreakoutUp, trading.SignalBBMeanReversionUp, trading.SignalVWAPCrossUp:
		return p.color(Green, IconUp+" "+t.DisplayName())
	case trading.SignalBBBreakoutDown, trading.SignalBBMeanReversionDown, trading.SignalVWAPCrossDown:
		return p.color(Red, IconDown+" "+t.DisplayName())
	}
	return t.DisplayName()
}

func optPercent(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String() + "%"
}

// Rules prints signal rules
func (p *Printer) Rules(rules []*trading.SignalRule) {
	if len(rules) == 0 {
		p.empty("signal rules")
		return
	}
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		enabled := p.color(Green, "on")
		if !r.Enabled {
			enabled = p.color(Gray, "off")
		}
		rows = append(rows, []string{
			p.color(BrightCyan, shortID(r.ID)),
			r.Name,
			r.SignalType.DisplayName(),
			r.OptionStrategy.DisplayName(),
			r.StrikeOffsetPercent.String() + "%",
			strconv.Itoa(r.ExpiryDays) + "d",
			r.PositionSizePercent.String() + "%",
			price(r.MaxPositionValue),
			optPercent(r.StopLossPercent),
			optPercent(r.TakeProfitPercent),
			optPercent(r.TrailingStopPercent),
			enabled,
		})
	}
	p.Table([]string{"ID", "NAME", "SIGNAL", "STRATEGY", "STRIKE", "EXPIRY", "SIZE", "MAX", "STOP", "TARGET", "TRAIL", "ENABLED"}, rows)
}

// Watchlist prints watchlist items
func (p *Printer) Watchlist(items []*trading.WatchlistItem) {
	if len(items) == 0 {
		p.println(p.color(Dim, "Watchlist is empty. Use 'signaldesk watchlist add SYMBOL' to add one."))
		return
	}
	rows := make([][]string, 0, len(items))
	for _, w := range items {
		enabled := p.color(Green, "on")
		if !w.Enabled {
			enabled = p.color(Gray, "off")
		}
		vwap := "on"
		if !w.VWAPEnabled {
			vwap = "off"
		}
		rows = append(rows, []string{
			p.color(BrightCyan, shortID(w.ID)),
			p.color(Bold, w.Symbol),
			strconv.Itoa(w.BBPeriod),
			strconv.FormatFloat(w.BBStdDev, 'f', -1, 64),
			vwap,
			enabled,
		})
	}
	p.Table([]string{"ID", "SYMBOL", "BB PERIOD", "BB K", "VWAP", "ENABLED"}, rows)
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// Settings prints trading settings
func (p *Printer) Settings(s *trading.TradingSettings) {
	p.Title("Trading Settings")
	p.Field("Balance", price(s.PaperTradingBalance))
	p.Field("Paper trading", onOff(s.PaperTradingEnabled))
	p.Field("Auto trade", onOff(s.AutoTradeEnabled))
	p.Field("Hours", s.TradingHoursStart+" - "+s.TradingHoursEnd)
	p.Field("Max trades/day", strconv.Itoa(s.MaxDailyTrades))
	p.Field("Max loss/day", price(s.MaxDailyLoss))
	p.Field("Max position", price(s.MaxPositionSize))
	p.NewLine()
}

// Summary prints the portfolio summary
func (p *Printer) Summary(s *ledger.Summary) {
	p.Title("Paper Portfolio")
	p.Field("Cash", price(s.Balance))
	p.Field("Market value", price(s.MarketValue))
	p.Field("Equity", p.color(Bold, price(s.Equity)))
	p.Field("Unrealized", p.pnl(&s.UnrealizedPnL))
	p.Field("Realized", p.pnl(&s.RealizedPnL))
	p.Field("Open", strconv.Itoa(s.OpenPositions)+" positions")
	p.Field("Trades", strconv.Itoa(s.TradeCount))

	rate := s.WinRate()
	p.Field("Win rate", fmt.Sprintf("%s %s%% (%d/%d)",
		p.progressBar(int(rate.IntPart()), 10), rate.StringFixed(1),
		s.WinningTrades, s.WinningTrades+s.LosingTrades))
	p.NewLine()
}

// TradeFilled prints the outcome of a paper trade
func (p *Printer) TradeFilled(r *ledger.TradeResult) {
	p.Success("Filled %s %d %s @ %s (commission %s)",
		r.Order.Side, r.Order.Quantity, r.Order.Symbol,
		price(r.Trade.Price), price(r.Trade.Commission))
	if r.Position != nil {
		p.Dim("  position %s opened", r.Position.ID)
	}
	p.Field("Balance", price(r.Balance))
}

// PositionClosed prints the outcome of a close
func (p *Printer) PositionClosed(r *ledger.CloseResult) {
	p.Success("Closed %d %s @ %s", r.Position.Quantity, r.Position.Symbol, price(r.Trade.Price))
	p.Field("Realized", p.pnl(&r.RealizedPnL))
	p.Field("Balance", price(r.Balance))
}

// Quote prints a market quote
func (p *Printer) Quote(q *provider.Quote) {
	change := decimal.NewFromFloat(q.Change).Round(2)
	pct := decimal.NewFromFloat(q.ChangePercent).Round(2)

	p.Title("%s", q.Symbol)
	p.Field("Price", p.color(Bold, price(decimal.NewFromFloat(q.Price))))
	p.Field("Change", p.pnl(&change)+" ("+trading.FormatPercent(&pct)+")")
	p.Field("Open", price(decimal.NewFromFloat(q.Open)))
	p.Field("High", price(decimal.NewFromFloat(q.High)))
	p.Field("Low", price(decimal.NewFromFloat(q.Low)))
	p.Field("Prev close", price(decimal.NewFromFloat(q.PrevClose)))
	p.Field("Volume", strconv.FormatFloat(q.Volume, 'f', 0, 64))
	p.Field("As of", q.Timestamp.Format("2006-01-02 15:04:05"))
	p.NewLine()
}

// Snapshot prints indicator state for a symbol
func (p *Printer) Snapshot(s *trading.Snapshot, vwapEnabled bool) {
	p.Title("%s indicators", s.Symbol)
	p.Field("Price", price(decimal.NewFromFloat(s.Price)))
	if s.Bands == nil {
		p.Field("Bollinger", p.color(Gray, "insufficient data"))
	} else {
		p.Field("BB upper", price(decimal.NewFromFloat(s.Bands.Upper)))
		p.Field("BB middle", price(decimal.NewFromFloat(s.Bands.Middle)))
		p.Field("BB lower", price(decimal.NewFromFloat(s.Bands.Lower)))
	}
	if vwapEnabled {
		p.Field("VWAP", price(decimal.NewFromFloat(s.VWAP)))
	}
	p.Field("As of", s.Timestamp.Format("2006-01-02 15:04:05"))
	p.NewLine()
}

// SignalAlert prints a newly fired signal
func (p *Printer) SignalAlert(sig *trading.Signal, trade *ledger.TradeResult) {
	separator := "================================================================================"
	p.println("\n" + separator)
	p.println(IconBell + " NEW SIGNAL")
	p.println(separator)
	p.Field("Symbol", sig.Symbol)
	p.Field("Signal", p.signalType(sig.Type))
	p.Field("Price", price(sig.PriceAtSignal))
	if sig.BBUpper != nil && sig.BBLower != nil {
		p.Field("Bands", trading.FormatPrice(sig.BBLower)+" - "+trading.FormatPrice(sig.BBUpper))
	}
	if sig.VWAP != nil {
		p.Field("VWAP", trading.FormatPrice(sig.VWAP))
	}
	p.Field("Triggered", sig.TriggeredAt.Format("2006-01-02 15:04:05"))

	if trade != nil {
		p.Field("Auto trade", fmt.Sprintf("%s %d @ %s", trade.Order.Side, trade.Order.Quantity, price(trade.Trade.Price)))
		if trade.Order.Expiry != nil {
			if d := trade.Order.Expiry.Sub(Now()); d > 0 {
				p.Field("Expires in", formatDuration(d))
			}
		}
		p.Field("Balance", price(trade.Balance))
	}
	p.println(separator)
}
