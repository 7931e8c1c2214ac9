package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/ledger"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

func parsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "$"))
	if err != nil {
		return decimal.Zero, &trading.ValidationError{Field: "price", Value: s, Message: "not a number"}
	}
	return d, nil
}

func parseQuantity(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &trading.ValidationError{Field: "quantity", Value: s, Message: "not a whole number"}
	}
	return n, nil
}

func tradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Place paper trades",
	}
	cmd.AddCommand(tradeSideCmd(trading.SideBuy), tradeSideCmd(trading.SideSell))
	return cmd
}

func tradeSideCmd(side trading.OrderSide) *cobra.Command {
	var (
		strategy   string
		strike     string
		expiry     string
		stopLoss   string
		takeProfit string
	)

	cmd := &cobra.Command{
		Use:   string(side) + " SYMBOL QTY PRICE",
		Short: fmt.Sprintf("Paper %s QTY contracts of SYMBOL at PRICE", side),
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			px, err := parsePrice(args[2])
			if err != nil {
				return err
			}

			req := ledger.TradeRequest{
				Symbol:   strings.ToUpper(args[0]),
				Side:     side,
				Quantity: qty,
				Price:    px,
			}
			if strategy != "" {
				s, err := trading.ParseOptionStrategy(strategy)
				if err != nil {
					return err
				}
				req.Strategy = &s
				if ot, ok := s.OptionType(); ok {
					req.OptionType = &ot
				}
			}
			if strike != "" {
				d, err := parsePrice(strike)
				if err != nil {
					return err
				}
				req.Strike = &d
			}
			if expiry != "" {
				t, err := time.ParseInLocation("2006-01-02", expiry, time.Local)
				if err != nil {
					return &trading.ValidationError{Field: "expiry", Value: expiry, Message: "use YYYY-MM-DD"}
				}
				req.Expiry = &t
			}
			if stopLoss != "" {
				d, err := parsePrice(stopLoss)
				if err != nil {
					return err
				}
				req.StopLossPrice = &d
			}
			if takeProfit != "" {
				d, err := parsePrice(takeProfit)
				if err != nil {
					return err
				}
				req.TakeProfitPrice = &d
			}

			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			req.UserID = a.userID
			res, err := a.ledger.ExecutePaperTrade(ctx, req)
			if err != nil {
				return err
			}
			return a.output(res, func() { a.printer.TradeFilled(res) })
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Option strategy, e.g. buy_call, sell_put")
	cmd.Flags().StringVar(&strike, "strike", "", "Option strike price")
	cmd.Flags().StringVar(&expiry, "expiry", "", "Option expiry date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&stopLoss, "stop-loss", "", "Stop-loss price")
	cmd.Flags().StringVar(&takeProfit, "take-profit", "", "Take-profit price")
	return cmd
}

func positionsCmd() *cobra.Command {
	var closed bool

	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List paper positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			filter := storage.PositionFilter{
				UserID:    a.userID,
				Open:      storage.OpenOnly(!closed),
				PaperOnly: true,
			}
			if closed {
				filter.Limit = storage.DefaultClosedPositionLimit
			}
			positions, err := a.store.ListPositions(ctx, filter)
			if err != nil {
				return err
			}
			return a.output(positions, func() { a.printer.Positions(positions) })
		},
	}
	cmd.Flags().BoolVar(&closed, "closed", false, "Show recently closed positions instead")

	closeCmd := &cobra.Command{
		Use:   "close ID PRICE",
		Short: "Close an open position at PRICE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			px, err := parsePrice(args[1])
			if err != nil {
				return err
			}

			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			id, err := a.resolvePosition(ctx, args[0])
			if err != nil {
				return err
			}
			res, err := a.ledger.ClosePaperPosition(ctx, a.userID, id, px)
			if err != nil {
				return err
			}
			return a.output(res, func() { a.printer.PositionClosed(res) })
		},
	}

	markCmd := &cobra.Command{
		Use:   "mark SYMBOL PRICE",
		Short: "Mark open positions in SYMBOL to PRICE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			px, err := parsePrice(args[1])
			if err != nil {
				return err
			}

			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			symbol := strings.ToUpper(args[0])
			n, err := a.ledger.MarkToMarket(ctx, a.userID, symbol, px)
			if err != nil {
				return err
			}
			return a.output(map[string]interface{}{"symbol": symbol, "price": px, "updated": n}, func() {
				a.printer.Success("Marked %d %s position(s) at %s", n, symbol, trading.FormatPrice(&px))
			})
		},
	}

	cmd.AddCommand(closeCmd, markCmd)
	return cmd
}

// resolvePosition expands a short position ID, as printed by `positions`,
// to the full ID of an open position
func (a *app) resolvePosition(ctx context.Context, id string) (string, error) {
	positions, err := a.store.ListPositions(ctx, storage.PositionFilter{
		UserID: a.userID,
		Open:   storage.OpenOnly(true),
	})
	if err != nil {
		return "", err
	}

	var matches []string
	for _, p := range positions {
		if p.ID == id {
			return id, nil
		}
		if strings.HasPrefix(p.ID, id) {
			matches = append(matches, p.ID)
		}
	}
	switch len(matches) {
	case 0:
		// Let the ledger report closed or unknown positions
		return id, nil
	case 1:
		return matches[0], nil
	default:
		return "", &trading.ValidationError{Field: "id", Value: id, Message: "ambiguous position id"}
	}
}

func ordersCmd() *cobra.Command {
	var (
		pending bool
		filled  bool
		symbol  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List paper orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pending && filled {
				return fmt.Errorf("--pending and --filled are mutually exclusive")
			}

			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			filter := storage.OrderFilter{
				UserID:    a.userID,
				Symbol:    strings.ToUpper(symbol),
				PaperOnly: true,
				Limit:     limit,
			}
			switch {
			case pending:
				filter.Statuses = []trading.OrderStatus{trading.OrderPending, trading.OrderSubmitted, trading.OrderPartial}
			case filled:
				filter.Statuses = []trading.OrderStatus{trading.OrderFilled}
			}

			orders, err := a.store.ListOrders(ctx, filter)
			if err != nil {
				return err
			}
			return a.output(orders, func() { a.printer.Orders(orders) })
		},
	}

	cmd.Flags().BoolVar(&pending, "pending", false, "Only working orders")
	cmd.Flags().BoolVar(&filled, "filled", false, "Only filled orders")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Only this symbol")
	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultOrderLimit, "Maximum orders to show")
	return cmd
}

func tradesCmd() *cobra.Command {
	var (
		symbol string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List paper trade fills",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			trades, err := a.store.ListPaperTrades(ctx, storage.TradeFilter{
				UserID: a.userID,
				Symbol: strings.ToUpper(symbol),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			return a.output(trades, func() { a.printer.Trades(trades) })
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Only this symbol")
	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultTradeLimit, "Maximum trades to show")
	return cmd
}

// summaryOutput adds the derived win rate to the JSON summary
type summaryOutput struct {
	*ledger.Summary
	WinRate decimal.Decimal `json:"win_rate"`
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show the paper portfolio summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			s, err := a.ledger.Summary(ctx, a.userID)
			if err != nil {
				return err
			}
			return a.output(summaryOutput{Summary: s, WinRate: s.WinRate()}, func() { a.printer.Summary(s) })
		},
	}
}
