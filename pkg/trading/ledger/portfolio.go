package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

// MarkToMarket sets current_price and unrealized_pnl on every open position
// of symbol. It returns the number of positions updated.
func (l *Ledger) MarkToMarket(ctx context.Context, userID, symbol string, price decimal.Decimal) (int, error) {
	if userID == "" {
		return 0, trading.ErrNotAuthenticated
	}
	if !price.IsPositive() {
		return 0, &trading.ValidationError{Field: "price", Value: price.String(), Message: "must be positive"}
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	unlock, err := l.locks.Lock(ctx, userID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	updated := 0
	err = l.store.Tx(ctx, func(tx storage.Tx) error {
		positions, err := tx.ListPositions(ctx, storage.PositionFilter{
			UserID: userID,
			Symbol: symbol,
			Open:   storage.OpenOnly(true),
		})
		if err != nil {
			return trading.WrapStore("load_position", err)
		}

		for _, pos := range positions {
			p := price
			pnl := price.Sub(pos.AvgCost).Mul(decimal.NewFromInt(pos.Quantity))
			pos.CurrentPrice = &p
			pos.UnrealizedPnL = &pnl
			if err := tx.UpdatePosition(ctx, pos); err != nil {
				return trading.WrapStore("update_position", err)
			}
		}
		updated = len(positions)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if updated > 0 {
		l.logger.Debug("positions marked",
			zap.String("user", userID),
			zap.String("symbol", symbol),
			zap.String("price", price.String()),
			zap.Int("count", updated))
	}
	return updated, nil
}

// Summary aggregates a user's paper account
type Summary struct {
	Balance       decimal.Decimal `json:"balance"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Equity        decimal.Decimal `json:"equity"`
	OpenPositions int             `json:"open_positions"`
	TradeCount    int             `json:"trade_count"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
}

// WinRate returns the share of closing trades with positive P&L, in percent
func (s *Summary) WinRate() decimal.Decimal {
	closed := s.WinningTrades + s.LosingTrades
	if closed == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.WinningTrades)).
		Div(decimal.NewFromInt(int64(closed))).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// Summary returns balance, open exposure and realized results for a user
func (l *Ledger) Summary(ctx context.Context, userID string) (*Summary, error) {
	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}

	positions, err := l.store.ListPositions(ctx, storage.PositionFilter{
		UserID:    userID,
		Open:      storage.OpenOnly(true),
		PaperOnly: true,
	})
	if err != nil {
		return nil, trading.WrapStore("load_position", err)
	}

	trades, err := l.store.ListPaperTrades(ctx, storage.TradeFilter{UserID: userID})
	if err != nil {
		return nil, trading.WrapStore("load_paper_trade", err)
	}

	s := &Summary{
		Balance:       balance,
		OpenPositions: len(positions),
		TradeCount:    len(trades),
	}
	for _, p := range positions {
		qty := decimal.NewFromInt(p.Quantity)
		s.MarketValue = s.MarketValue.Add(p.MarketValue())
		s.CostBasis = s.CostBasis.Add(p.AvgCost.Mul(qty))
	}
	s.UnrealizedPnL = s.MarketValue.Sub(s.CostBasis)

	for _, t := range trades {
		if t.RealizedPnL == nil {
			continue
		}
		s.RealizedPnL = s.RealizedPnL.Add(*t.RealizedPnL)
		if t.RealizedPnL.IsPositive() {
			s.WinningTrades++
		} else {
			s.LosingTrades++
		}
	}
	s.Equity = s.Balance.Add(s.MarketValue)

	return s, nil
}
