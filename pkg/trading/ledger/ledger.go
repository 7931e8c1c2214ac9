// Package ledger executes paper trades against a virtual cash balance.
//
// Every operation runs under a per-user lock and inside one store
// transaction, so the order, position, trade and balance writes for a trade
// are applied together or not at all.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

var (
	// DefaultCommission is the flat fee charged per trade
	DefaultCommission = decimal.RequireFromString("0.65")

	// DefaultCloseCommissionMultiplier is applied to the commission when
	// computing realized P&L at close. Entry commission was already taken
	// from the balance at open, so 2 counts it twice; set 1 to charge only
	// the exit fee.
	DefaultCloseCommissionMultiplier = decimal.NewFromInt(2)
)

// Options configures a Ledger
type Options struct {
	// DefaultBalance is used when the user has no settings row yet
	DefaultBalance decimal.Decimal

	// Nil means the default. Zero is a valid setting for both.
	Commission                *decimal.Decimal
	CloseCommissionMultiplier *decimal.Decimal

	// Now returns the timestamp written on new records
	Now func() time.Time

	Logger *zap.Logger
}

// DefaultOptions returns the standard paper trading parameters
func DefaultOptions() Options {
	commission, multiplier := DefaultCommission, DefaultCloseCommissionMultiplier
	return Options{
		DefaultBalance:            trading.DefaultPaperBalance,
		Commission:                &commission,
		CloseCommissionMultiplier: &multiplier,
		Now:                       time.Now,
		Logger:                    zap.NewNop(),
	}
}

// Ledger is the paper trading ledger
type Ledger struct {
	store  storage.Store
	opts   Options
	locks  *UserLock
	logger *zap.Logger
}

// New creates a ledger. Unset options fall back to DefaultOptions; a zero
// DefaultBalance counts as unset.
func New(store storage.Store, opts Options) *Ledger {
	def := DefaultOptions()
	if opts.DefaultBalance.IsZero() {
		opts.DefaultBalance = def.DefaultBalance
	}
	if opts.Commission == nil {
		opts.Commission = def.Commission
	}
	if opts.CloseCommissionMultiplier == nil {
		opts.CloseCommissionMultiplier = def.CloseCommissionMultiplier
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}

	return &Ledger{
		store:  store,
		opts:   opts,
		locks:  NewUserLock(),
		logger: opts.Logger.Named("ledger"),
	}
}

// Options returns the ledger's effective options
func (l *Ledger) Options() Options {
	return l.opts
}

// TradeRequest is one trade intent. The optional fields describe the option
// contract and risk levels and are copied onto the order and position.
type TradeRequest struct {
	UserID   string
	Symbol   string
	Side     trading.OrderSide
	Quantity int64
	Price    decimal.Decimal

	SignalID            *string
	Strategy            *trading.OptionStrategy
	OptionType          *trading.OptionType
	Strike              *decimal.Decimal
	Expiry              *time.Time
	TrailingStopPercent *decimal.Decimal
	TrailingStopPrice   *decimal.Decimal
	StopLossPrice       *decimal.Decimal
	TakeProfitPrice     *decimal.Decimal
}

// Validate checks the request before anything is written
func (r *TradeRequest) Validate() error {
	if r.UserID == "" {
		return trading.ErrNotAuthenticated
	}
	if strings.TrimSpace(r.Symbol) == "" {
		return &trading.ValidationError{Field: "symbol", Value: r.Symbol, Message: "is required"}
	}
	if r.Side != trading.SideBuy && r.Side != trading.SideSell {
		return &trading.ValidationError{Field: "side", Value: r.Side, Message: "must be buy or sell"}
	}
	if r.Quantity <= 0 {
		return &trading.ValidationError{Field: "quantity", Value: r.Quantity, Message: "must be positive"}
	}
	if !r.Price.IsPositive() {
		return &trading.ValidationError{Field: "price", Value: r.Price.String(), Message: "must be positive"}
	}
	return nil
}

// TradeResult holds the records written by ExecutePaperTrade. Position is
// nil for sells.
type TradeResult struct {
	Order    *trading.Order
	Position *trading.Position
	Trade    *trading.PaperTrade
	Balance  decimal.Decimal
}

// CloseResult holds the records written by ClosePaperPosition
type CloseResult struct {
	Position    *trading.Position
	Trade       *trading.PaperTrade
	RealizedPnL decimal.Decimal
	Balance     decimal.Decimal
}

// ExecutePaperTrade fills req immediately at req.Price. A buy opens a new
// position lot; a sell credits the balance without touching positions.
func (l *Ledger) ExecutePaperTrade(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

	unlock, err := l.locks.Lock(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *TradeResult
	err = l.store.Tx(ctx, func(tx storage.Tx) error {
		settings, err := l.loadSettings(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		balance := settings.PaperTradingBalance

		commission := *l.opts.Commission
		total := req.Price.Mul(decimal.NewFromInt(req.Quantity))

		var newBalance decimal.Decimal
		if req.Side == trading.SideBuy {
			if total.Add(commission).GreaterThan(balance) {
				return fmt.Errorf("%w: need %s, have %s",
					trading.ErrInsufficientFunds, total.Add(commission).StringFixed(2), balance.StringFixed(2))
			}
			newBalance = balance.Sub(total).Sub(commission)
		} else {
			newBalance = balance.Add(total).Sub(commission)
		}

		now := l.opts.Now()
		price := req.Price

		order := &trading.Order{
			UserID:              req.UserID,
			SignalID:            req.SignalID,
			Symbol:              req.Symbol,
			OptionType:          req.OptionType,
			Strike:              req.Strike,
			Expiry:              req.Expiry,
			Side:                req.Side,
			Quantity:            req.Quantity,
			LimitPrice:          &price,
			FilledPrice:         &price,
			Status:              trading.OrderFilled,
			Strategy:            req.Strategy,
			TrailingStopPercent: req.TrailingStopPercent,
			StopLossPrice:       req.StopLossPrice,
			TakeProfitPrice:     req.TakeProfitPrice,
			IsPaperTrade:        true,
			CreatedAt:           now,
			UpdatedAt:           now,
			FilledAt:            &now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return trading.WrapStore("insert_order", err)
		}

		var position *trading.Position
		if req.Side == trading.SideBuy {
			zero := decimal.Zero
			position = &trading.Position{
				UserID:            req.UserID,
				OrderID:           &order.ID,
				Symbol:            req.Symbol,
				OptionType:        req.OptionType,
				Strike:            req.Strike,
				Expiry:            req.Expiry,
				Quantity:          req.Quantity,
				AvgCost:           price,
				CurrentPrice:      &price,
				UnrealizedPnL:     &zero,
				TrailingStopPrice: req.TrailingStopPrice,
				StopLossPrice:     req.StopLossPrice,
				TakeProfitPrice:   req.TakeProfitPrice,
				IsOpen:            true,
				IsPaperTrade:      true,
				OpenedAt:          now,
			}
			if err := tx.InsertPosition(ctx, position); err != nil {
				return trading.WrapStore("insert_position", err)
			}
		}

		if req.SignalID != nil {
			if err := tx.MarkSignalExecuted(ctx, req.UserID, *req.SignalID); err != nil {
				return trading.WrapStore("mark_signal", err)
			}
		}

		trade := &trading.PaperTrade{
			UserID:       req.UserID,
			OrderID:      &order.ID,
			Symbol:       req.Symbol,
			Side:         req.Side,
			Quantity:     req.Quantity,
			Price:        price,
			TotalValue:   total,
			Commission:   commission,
			BalanceAfter: newBalance,
			ExecutedAt:   now,
		}
		if position != nil {
			trade.PositionID = &position.ID
		}
		if err := tx.InsertPaperTrade(ctx, trade); err != nil {
			return trading.WrapStore("insert_paper_trade", err)
		}

		settings.PaperTradingBalance = newBalance
		settings.UpdatedAt = now
		if err := tx.UpsertSettings(ctx, settings); err != nil {
			return trading.WrapStore("upsert_settings", err)
		}

		result = &TradeResult{Order: order, Position: position, Trade: trade, Balance: newBalance}
		return nil
	})
	if err != nil {
		l.logger.Warn("paper trade rejected",
			zap.String("user", req.UserID),
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.Error(err))
		return nil, err
	}

	l.logger.Info("paper trade filled",
		zap.String("user", req.UserID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Int64("quantity", req.Quantity),
		zap.String("price", req.Price.String()),
		zap.String("balance", result.Balance.StringFixed(2)))

	return result, nil
}

// ClosePaperPosition closes an open position at closePrice and books the
// realized P&L
func (l *Ledger) ClosePaperPosition(ctx context.Context, userID, positionID string, closePrice decimal.Decimal) (*CloseResult, error) {
	if userID == "" {
		return nil, trading.ErrNotAuthenticated
	}
	if positionID == "" {
		return nil, &trading.ValidationError{Field: "position_id", Message: "is required"}
	}
	if !closePrice.IsPositive() {
		return nil, &trading.ValidationError{Field: "close_price", Value: closePrice.String(), Message: "must be positive"}
	}

	unlock, err := l.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *CloseResult
	err = l.store.Tx(ctx, func(tx storage.Tx) error {
		pos, err := tx.GetPosition(ctx, userID, positionID)
		if err != nil {
			return trading.WrapStore("load_position", err)
		}
		if !pos.IsOpen {
			return &trading.ValidationError{Field: "position_id", Value: positionID, Message: "position is already closed"}
		}

		settings, err := l.loadSettings(ctx, tx, userID)
		if err != nil {
			return err
		}

		qty := decimal.NewFromInt(pos.Quantity)
		commission := *l.opts.Commission
		total := qty.Mul(closePrice)
		realized := closePrice.Sub(pos.AvgCost).Mul(qty).Sub(commission.Mul(*l.opts.CloseCommissionMultiplier))
		newBalance := settings.PaperTradingBalance.Add(total).Sub(commission)
		now := l.opts.Now()

		price := closePrice
		pnl := realized
		pos.IsOpen = false
		pos.CurrentPrice = &price
		pos.UnrealizedPnL = &pnl
		pos.ClosedAt = &now
		if err := tx.UpdatePosition(ctx, pos); err != nil {
			return trading.WrapStore("update_position", err)
		}

		trade := &trading.PaperTrade{
			UserID:       userID,
			PositionID:   &pos.ID,
			Symbol:       pos.Symbol,
			Side:         trading.SideSell,
			Quantity:     pos.Quantity,
			Price:        closePrice,
			TotalValue:   total,
			Commission:   commission,
			RealizedPnL:  &pnl,
			BalanceAfter: newBalance,
			ExecutedAt:   now,
		}
		if err := tx.InsertPaperTrade(ctx, trade); err != nil {
			return trading.WrapStore("insert_paper_trade", err)
		}

		settings.PaperTradingBalance = newBalance
		settings.UpdatedAt = now
		if err := tx.UpsertSettings(ctx, settings); err != nil {
			return trading.WrapStore("upsert_settings", err)
		}

		result = &CloseResult{Position: pos, Trade: trade, RealizedPnL: realized, Balance: newBalance}
		return nil
	})
	if err != nil {
		l.logger.Warn("close position rejected",
			zap.String("user", userID),
			zap.String("position", positionID),
			zap.Error(err))
		return nil, err
	}

	l.logger.Info("paper position closed",
		zap.String("user", userID),
		zap.String("position", positionID),
		zap.String("symbol", result.Position.Symbol),
		zap.String("realized_pnl", result.RealizedPnL.StringFixed(2)),
		zap.String("balance", result.Balance.StringFixed(2)))

	return result, nil
}

// Balance returns the user's paper balance, or the default balance when the
// user has no settings yet
func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if userID == "" {
		return decimal.Zero, trading.ErrNotAuthenticated
	}
	settings, err := l.store.GetSettings(ctx, userID)
	if errors.Is(err, trading.ErrNotFound) {
		return l.opts.DefaultBalance, nil
	}
	if err != nil {
		return decimal.Zero, trading.WrapStore("load_settings", err)
	}
	return settings.PaperTradingBalance, nil
}

// loadSettings reads the settings row inside tx, or builds the default row
// for a user who has none
func (l *Ledger) loadSettings(ctx context.Context, tx storage.Tx, userID string) (*trading.TradingSettings, error) {
	settings, err := tx.GetSettings(ctx, userID)
	if errors.Is(err, trading.ErrNotFound) {
		return trading.NewSettings(userID, l.opts.DefaultBalance, l.opts.Now()), nil
	}
	if err != nil {
		return nil, trading.WrapStore("load_settings", err)
	}
	return settings, nil
}
