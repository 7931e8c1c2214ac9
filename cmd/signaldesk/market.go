package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/account"
	"github.com/xinguang/signaldesk/pkg/trading/engine"
	"github.com/xinguang/signaldesk/pkg/trading/indicator"
	"github.com/xinguang/signaldesk/pkg/trading/ledger"
	"github.com/xinguang/signaldesk/pkg/trading/provider"
	"github.com/xinguang/signaldesk/pkg/trading/rules"
	tsignal "github.com/xinguang/signaldesk/pkg/trading/signal"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

func runCmd() *cobra.Command {
	var autoTrade bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream market data and fire signals until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.seedWatchlist(ctx); err != nil {
				return err
			}

			snapshots, err := a.openCache(ctx)
			if err != nil {
				return err
			}
			defer snapshots.Close()

			feed, err := a.openFeed()
			if err != nil {
				return err
			}

			eng := engine.New(a.store, a.ledger, snapshots, feed, engine.Config{
				UserID:        a.userID,
				Lookback:      a.cfg.Indicators.Lookback,
				AutoTrade:     a.cfg.Engine.AutoTrade || autoTrade,
				MarkPositions: a.cfg.Engine.MarkPositions,
				Premium:       rules.PercentOfUnderlying{Percent: a.cfg.Engine.PremiumPercent},
				Logger:        a.logger,
			})
			if err := eng.Start(ctx, a.historyInterval()); err != nil {
				feed.Close()
				return err
			}

			if !jsonOutput {
				a.printer.Title("signaldesk %s", version)
				a.printer.Field("User", a.userID)
				a.printer.Field("Feed", feed.Name())
				a.printer.Field("Auto trade", onOffLabel(a.cfg.Engine.AutoTrade || autoTrade))
				a.printer.Dim("Running... Press Ctrl+C to stop")
				a.printer.NewLine()
			}

			for {
				select {
				case <-ctx.Done():
					if !jsonOutput {
						a.printer.Info("Shutting down...")
					}
					return eng.Stop()
				case res := <-eng.Results():
					if err := a.printResult(res); err != nil {
						a.logger.Warn("print failed", zap.Error(err))
					}
				}
			}
		},
	}

	cmd.Flags().BoolVar(&autoTrade, "auto-trade", false, "Enable auto trading for this run (settings must allow it too)")
	return cmd
}

func onOffLabel(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// seedWatchlist adds the configured feed symbols when the watchlist is empty
func (a *app) seedWatchlist(ctx context.Context) error {
	items, err := a.account.Watchlist(ctx, a.userID)
	if err != nil {
		return err
	}
	if len(items) > 0 || len(a.cfg.Feed.Symbols) == 0 {
		return nil
	}

	period, stdDev := a.cfg.Indicators.BBPeriod, a.cfg.Indicators.BBStdDev
	for _, symbol := range a.cfg.Feed.Symbols {
		_, err := a.account.AddSymbol(ctx, a.userID, symbol, account.WatchlistPatch{
			BBPeriod: &period,
			BBStdDev: &stdDev,
		})
		if err != nil {
			return fmt.Errorf("seed watchlist with %s: %w", symbol, err)
		}
	}
	a.logger.Info("watchlist seeded from config", zap.Strings("symbols", a.cfg.Feed.Symbols))
	return nil
}

func (a *app) printResult(res *engine.Result) error {
	if jsonOutput {
		return a.printer.JSON(res)
	}
	for _, sig := range res.Signals {
		a.printer.SignalAlert(sig, tradeFor(res.Trades, sig))
	}
	if res.Skipped != "" {
		a.printer.Dim("Auto trade skipped: %s", res.Skipped)
	}
	return nil
}

// tradeFor finds the auto trade placed for sig, if any
func tradeFor(trades []*ledger.TradeResult, sig *trading.Signal) *ledger.TradeResult {
	for _, t := range trades {
		if t.Order.SignalID != nil && *t.Order.SignalID == sig.ID {
			return t
		}
	}
	return nil
}

func quoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Show the latest quote for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			feed, err := a.openFeed()
			if err != nil {
				return err
			}
			defer feed.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			q, err := feed.Quote(ctx, strings.ToUpper(args[0]))
			if err != nil {
				return err
			}
			return a.output(q, func() { a.printer.Quote(q) })
		},
	}
}

// analysis is the JSON shape of `analyze`
type analysis struct {
	Snapshot *trading.Snapshot    `json:"snapshot"`
	Signals  []trading.SignalType `json:"signals"`
	Bars     int                  `json:"bars"`
}

func analyzeCmd() *cobra.Command {
	var (
		period  int
		stdDev  float64
		noVWAP  bool
		bars    int
		barSize string
	)

	cmd := &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Compute Bollinger Bands and VWAP from recent history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if period <= 0 {
				period = a.cfg.Indicators.BBPeriod
			}
			if stdDev <= 0 {
				stdDev = a.cfg.Indicators.BBStdDev
			}
			if bars <= 0 {
				bars = a.cfg.Indicators.Lookback
			}
			interval := a.historyInterval()
			if barSize != "" {
				if interval, err = provider.ParseInterval(barSize); err != nil {
					return err
				}
			}

			feed, err := a.openFeed()
			if err != nil {
				return err
			}
			defer feed.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			history, err := feed.History(ctx, symbol, interval, bars)
			if errors.Is(err, provider.ErrNoHistory) {
				return fmt.Errorf("%s feed has no history: use the mock or alpaca feed", feed.Name())
			}
			if err != nil {
				return err
			}
			if len(history) == 0 {
				return fmt.Errorf("no bars for %s", symbol)
			}

			result := analyze(symbol, history, period, stdDev, !noVWAP)
			return a.output(result, func() {
				a.printer.Snapshot(result.Snapshot, !noVWAP)
				a.printer.Dim("%d %s bars", result.Bars, interval)
				for _, t := range result.Signals {
					a.printer.Warning("Signal on last bar: %s", t)
				}
			})
		},
	}

	cmd.Flags().IntVar(&period, "period", 0, "Bollinger period (defaults to config)")
	cmd.Flags().Float64Var(&stdDev, "std-dev", 0, "Bollinger standard deviation multiplier (defaults to config)")
	cmd.Flags().BoolVar(&noVWAP, "no-vwap", false, "Skip VWAP")
	cmd.Flags().IntVar(&bars, "bars", 0, "Number of bars to load (defaults to lookback)")
	cmd.Flags().StringVar(&barSize, "interval", "", "Bar size: 1min, 5min, 15min, 60min, daily")
	return cmd
}

// analyze computes the snapshot over history and the signals the last bar
// fired against the snapshot before it
func analyze(symbol string, history []trading.Tick, period int, stdDev float64, vwapEnabled bool) *analysis {
	series := indicator.NewSeries(len(history))
	var previous *trading.Snapshot
	for i, t := range history {
		series.Append(t)
		if i == len(history)-2 {
			previous = snapshotOf(symbol, series, period, stdDev, vwapEnabled)
		}
	}
	current := snapshotOf(symbol, series, period, stdDev, vwapEnabled)

	return &analysis{
		Snapshot: current,
		Signals:  tsignal.DetectSnapshots(current, previous),
		Bars:     len(history),
	}
}

func snapshotOf(symbol string, s *indicator.Series, period int, stdDev float64, vwapEnabled bool) *trading.Snapshot {
	last, _ := s.Last()
	bands, vwap := s.Compute(period, stdDev, vwapEnabled)
	return &trading.Snapshot{
		Symbol:    symbol,
		Price:     last.Price,
		Bands:     bands,
		VWAP:      vwap,
		Timestamp: last.Timestamp,
	}
}

func signalsCmd() *cobra.Command {
	var (
		symbol     string
		signalType string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "signals",
		Short: "List recent signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			filter := storage.SignalFilter{
				UserID: a.userID,
				Symbol: strings.ToUpper(symbol),
				Limit:  limit,
			}
			if signalType != "" {
				if filter.Type, err = trading.ParseSignalType(signalType); err != nil {
					return err
				}
			}

			signals, err := a.store.ListSignals(ctx, filter)
			if err != nil {
				return err
			}
			return a.output(signals, func() { a.printer.Signals(signals) })
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Only this symbol")
	cmd.Flags().StringVarP(&signalType, "type", "t", "", "Only this signal type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum signals to show")
	return cmd
}
