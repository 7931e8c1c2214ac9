// Package engine runs the tick pipeline: each tick is appended to the
// symbol's series, indicators are recomputed, the detector compares against
// the last-seen snapshot, fired signals are persisted per matching rule and,
// when the user allows it, sized intents are executed on the paper ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/cache"
	"github.com/xinguang/signaldesk/pkg/trading/indicator"
	"github.com/xinguang/signaldesk/pkg/trading/ledger"
	"github.com/xinguang/signaldesk/pkg/trading/provider"
	"github.com/xinguang/signaldesk/pkg/trading/rules"
	"github.com/xinguang/signaldesk/pkg/trading/signal"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

// DefaultLookback is the per-symbol series window
const DefaultLookback = 200

// Config holds engine configuration
type Config struct {
	UserID string

	// Lookback bounds each symbol's tick window
	Lookback int

	// AutoTrade is the process-wide switch; the user's settings must also
	// enable auto trading
	AutoTrade bool

	// MarkPositions updates open positions with every tick's price
	MarkPositions bool

	// BufferSize is the tick queue between the feed and the pipeline
	BufferSize int

	Premium rules.PremiumEstimator
	Now     func() time.Time
	Logger  *zap.Logger
}

// Engine is the signal and auto-trade pipeline for one user
type Engine struct {
	cfg     Config
	store   storage.Store
	ledger  *ledger.Ledger
	cache   cache.Cache
	feed    provider.Provider
	matcher *rules.Matcher
	logger  *zap.Logger

	mu     sync.Mutex
	series map[string]*indicator.Series
	watch  map[string]*trading.WatchlistItem

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ticks   chan trading.Tick
	results chan *Result
}

// Result is what one tick produced
type Result struct {
	Snapshot *trading.Snapshot
	Types    []trading.SignalType
	Signals  []*trading.Signal
	Trades   []*ledger.TradeResult

	// Skipped holds the reason auto trading did not run, if it was considered
	Skipped string
}

// New creates an engine. feed may be nil when ticks are pushed with OnTick.
func New(store storage.Store, led *ledger.Ledger, c cache.Cache, feed provider.Provider, cfg Config) *Engine {
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if c == nil {
		c = cache.NewMemory(0, 0)
	}

	return &Engine{
		cfg:     cfg,
		store:   store,
		ledger:  led,
		cache:   c,
		feed:    feed,
		matcher: rules.NewMatcher(cfg.Premium),
		logger:  cfg.Logger.Named("engine"),
		series:  make(map[string]*indicator.Series),
		watch:   make(map[string]*trading.WatchlistItem),
		results: make(chan *Result, 64),
	}
}

// Results delivers the outcome of ticks that fired at least one signal.
// Results are dropped when nobody reads them.
func (e *Engine) Results() <-chan *Result {
	return e.results
}

// LoadWatchlist reads the user's enabled watchlist and returns its symbols
func (e *Engine) LoadWatchlist(ctx context.Context) ([]string, error) {
	items, err := e.store.ListWatchlist(ctx, storage.WatchlistFilter{UserID: e.cfg.UserID, EnabledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.watch = make(map[string]*trading.WatchlistItem, len(items))
	symbols := make([]string, 0, len(items))
	for _, item := range items {
		e.watch[item.Symbol] = item
		symbols = append(symbols, item.Symbol)
	}
	return symbols, nil
}

// Warmup seeds each symbol's series from the cache, falling back to feed
// history, and stores an initial snapshot. No signals fire during warmup.
func (e *Engine) Warmup(ctx context.Context, interval provider.Interval) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for symbol, item := range e.watch {
		ticks, err := e.cache.RecentTicks(ctx, symbol, e.cfg.Lookback)
		if err != nil {
			e.logger.Warn("cache read failed", zap.String("symbol", symbol), zap.Error(err))
		}
		if len(ticks) == 0 && e.feed != nil {
			ticks, err = e.feed.History(ctx, symbol, interval, e.cfg.Lookback)
			if err != nil && !errors.Is(err, provider.ErrNoHistory) {
				e.logger.Warn("history unavailable", zap.String("symbol", symbol), zap.Error(err))
			}
		}
		if len(ticks) == 0 {
			continue
		}

		s := e.seriesFor(symbol)
		for _, t := range ticks {
			s.Append(t)
		}
		snap := e.snapshot(symbol, item, s)
		if err := e.cache.SetSnapshot(ctx, snap); err != nil {
			e.logger.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
		e.logger.Debug("warmed up", zap.String("symbol", symbol), zap.Int("ticks", s.Len()))
	}
	return nil
}

// Start loads the watchlist, warms up and subscribes to the feed
func (e *Engine) Start(ctx context.Context, interval provider.Interval) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	if e.feed == nil {
		e.mu.Unlock()
		return fmt.Errorf("engine has no market data feed")
	}
	e.running = true
	e.mu.Unlock()

	symbols, err := e.LoadWatchlist(ctx)
	if err != nil {
		e.setStopped()
		return err
	}
	if len(symbols) == 0 {
		e.setStopped()
		return fmt.Errorf("watchlist is empty: add symbols with `signaldesk watchlist add`")
	}
	if err := e.Warmup(ctx, interval); err != nil {
		e.setStopped()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.ticks = make(chan trading.Tick, e.cfg.BufferSize)
	ticks := e.ticks
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticks:
				res, err := e.OnTick(ctx, t)
				if err != nil {
					if ctx.Err() == nil {
						e.logger.Warn("tick failed", zap.String("symbol", t.Symbol), zap.Error(err))
					}
					continue
				}
				if res != nil && len(res.Signals) > 0 {
					select {
					case e.results <- res:
					default:
					}
				}
			}
		}
	}()

	err = e.feed.Subscribe(ctx, symbols, func(t trading.Tick) {
		select {
		case ticks <- t:
		case <-ctx.Done():
		default:
			e.logger.Warn("tick queue full, dropping tick", zap.String("symbol", t.Symbol))
		}
	})
	if err != nil {
		cancel()
		e.wg.Wait()
		e.setStopped()
		return fmt.Errorf("subscribe %s: %w", e.feed.Name(), err)
	}

	e.logger.Info("engine started",
		zap.String("user", e.cfg.UserID),
		zap.String("feed", e.feed.Name()),
		zap.Strings("symbols", symbols),
		zap.Bool("auto_trade", e.cfg.AutoTrade))
	return nil
}

func (e *Engine) setStopped() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// Stop cancels the subscription, waits for the pipeline and closes the feed
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine not running")
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	if err := e.feed.Close(); err != nil {
		return fmt.Errorf("error closing provider: %w", err)
	}
	e.logger.Info("engine stopped")
	return nil
}

// OnTick runs one tick through the pipeline. Ticks for symbols not on the
// watchlist, and ticks older than the symbol's last one, return a nil result.
func (e *Engine) OnTick(ctx context.Context, t trading.Tick) (*Result, error) {
	t.Symbol = strings.ToUpper(t.Symbol)
	if t.Timestamp.IsZero() {
		t.Timestamp = e.cfg.Now()
	}

	e.mu.Lock()
	item, ok := e.watch[t.Symbol]
	if !ok {
		e.mu.Unlock()
		return nil, nil
	}
	s := e.seriesFor(t.Symbol)
	if !s.Append(t) {
		// Out of order
		e.mu.Unlock()
		return nil, nil
	}
	current := e.snapshot(t.Symbol, item, s)
	e.mu.Unlock()

	if err := e.cache.AppendTick(ctx, t); err != nil {
		e.logger.Warn("cache write failed", zap.String("symbol", t.Symbol), zap.Error(err))
	}
	previous, err := e.cache.GetSnapshot(ctx, t.Symbol)
	if err != nil {
		e.logger.Warn("cache read failed", zap.String("symbol", t.Symbol), zap.Error(err))
	}
	if err := e.cache.SetSnapshot(ctx, current); err != nil {
		e.logger.Warn("cache write failed", zap.String("symbol", t.Symbol), zap.Error(err))
	}

	if e.cfg.MarkPositions && e.ledger != nil {
		if _, err := e.ledger.MarkToMarket(ctx, e.cfg.UserID, t.Symbol, decimal.NewFromFloat(t.Price)); err != nil {
			e.logger.Warn("mark to market failed", zap.String("symbol", t.Symbol), zap.Error(err))
		}
	}

	res := &Result{Snapshot: current}
	res.Types = signal.DetectSnapshots(current, previous)
	e.logger.Debug("tick",
		zap.String("symbol", t.Symbol),
		zap.Float64("price", t.Price),
		zap.Int("signals", len(res.Types)))
	if len(res.Types) == 0 {
		return res, nil
	}

	ruleList, err := e.store.ListSignalRules(ctx, storage.RuleFilter{UserID: e.cfg.UserID, EnabledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	type pending struct {
		sig  *trading.Signal
		rule *trading.SignalRule
	}
	var toTrade []pending

	err = e.store.Tx(ctx, func(tx storage.Tx) error {
		for _, st := range res.Types {
			ev := signal.Event{
				UserID:      e.cfg.UserID,
				WatchlistID: item.ID,
				Type:        st,
				Tick:        t,
				Bands:       current.Bands,
				VWAP:        current.VWAP,
				VWAPEnabled: item.VWAPEnabled,
			}

			matched := rules.Filter(ruleList, st)
			if len(matched) == 0 {
				sig := signal.NewRecord(ev, "")
				if err := tx.InsertSignal(ctx, sig); err != nil {
					return trading.WrapStore("insert_signal", err)
				}
				res.Signals = append(res.Signals, sig)
				continue
			}
			for _, rule := range matched {
				sig := signal.NewRecord(ev, rule.ID)
				if err := tx.InsertSignal(ctx, sig); err != nil {
					return trading.WrapStore("insert_signal", err)
				}
				res.Signals = append(res.Signals, sig)
				toTrade = append(toTrade, pending{sig: sig, rule: rule})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, sig := range res.Signals {
		fields := []zap.Field{
			zap.String("symbol", sig.Symbol),
			zap.String("signal", string(sig.Type)),
			zap.String("price", sig.PriceAtSignal.String()),
		}
		if sig.SignalRuleID != nil {
			fields = append(fields, zap.String("rule", *sig.SignalRuleID))
		}
		e.logger.Info("signal", fields...)
	}

	if !e.cfg.AutoTrade || e.ledger == nil || len(toTrade) == 0 {
		return res, nil
	}

	for _, p := range toTrade {
		trade, reason, err := e.autoTrade(ctx, p.sig, p.rule)
		if err != nil {
			e.logger.Warn("auto trade failed",
				zap.String("signal", p.sig.ID),
				zap.String("rule", p.rule.Name),
				zap.Error(err))
			continue
		}
		if reason != "" {
			res.Skipped = reason
			e.logger.Info("auto trade skipped",
				zap.String("signal", p.sig.ID),
				zap.String("rule", p.rule.Name),
				zap.String("reason", reason))
			continue
		}
		p.sig.Executed = true
		res.Trades = append(res.Trades, trade)
	}
	return res, nil
}

// autoTrade sizes and executes one intent. A non-empty reason means the
// user's limits or the rule's strategy blocked it.
func (e *Engine) autoTrade(ctx context.Context, sig *trading.Signal, rule *trading.SignalRule) (*ledger.TradeResult, string, error) {
	settings, err := e.settings(ctx)
	if err != nil {
		return nil, "", err
	}
	now := e.cfg.Now()

	if reason, err := e.gate(ctx, settings, now); err != nil || reason != "" {
		return nil, reason, err
	}

	// A paper sell opens no position, so a credit strategy would only add cash
	if rule.OptionStrategy.Side() == trading.SideSell {
		return nil, "sell strategies are not auto traded", nil
	}

	intent, err := e.matcher.Intent(sig, rule, rules.Account{
		Balance:         settings.PaperTradingBalance,
		MaxPositionSize: settings.MaxPositionSize,
	})
	if err != nil {
		return nil, "", err
	}
	if intent == nil {
		return nil, "position size below one contract", nil
	}

	result, err := e.ledger.ExecutePaperTrade(ctx, intent.TradeRequest(e.cfg.UserID))
	if errors.Is(err, trading.ErrInsufficientFunds) {
		return nil, "insufficient funds", nil
	}
	if err != nil {
		return nil, "", err
	}
	return result, "", nil
}

// gate applies the settings limits: auto and paper trading enabled, trading
// hours, the daily trade count and the daily realized loss
func (e *Engine) gate(ctx context.Context, settings *trading.TradingSettings, now time.Time) (string, error) {
	switch {
	case !settings.AutoTradeEnabled:
		return "auto trading disabled", nil
	case !settings.PaperTradingEnabled:
		return "paper trading disabled", nil
	case !settings.WithinHours(now):
		return "outside trading hours", nil
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	trades, err := e.store.ListPaperTrades(ctx, storage.TradeFilter{UserID: e.cfg.UserID, Since: midnight})
	if err != nil {
		return "", trading.WrapStore("load_paper_trade", err)
	}
	if settings.MaxDailyTrades > 0 && len(trades) >= settings.MaxDailyTrades {
		return "daily trade limit reached", nil
	}

	if loss := DailyLoss(trades); settings.MaxDailyLoss.IsPositive() && loss.GreaterThanOrEqual(settings.MaxDailyLoss) {
		return "daily loss limit reached", nil
	}
	return "", nil
}

// DailyLoss returns the net realized loss across trades as a positive
// amount, or zero when the net is a gain
func DailyLoss(trades []*trading.PaperTrade) decimal.Decimal {
	net := decimal.Zero
	for _, t := range trades {
		if t.RealizedPnL != nil {
			net = net.Add(*t.RealizedPnL)
		}
	}
	if net.IsNegative() {
		return net.Neg()
	}
	return decimal.Zero
}

func (e *Engine) settings(ctx context.Context) (*trading.TradingSettings, error) {
	s, err := e.store.GetSettings(ctx, e.cfg.UserID)
	if errors.Is(err, trading.ErrNotFound) {
		return trading.NewSettings(e.cfg.UserID, e.ledger.Options().DefaultBalance, e.cfg.Now()), nil
	}
	if err != nil {
		return nil, trading.WrapStore("load_settings", err)
	}
	return s, nil
}

// seriesFor returns the symbol's series, creating it. Callers hold e.mu.
func (e *Engine) seriesFor(symbol string) *indicator.Series {
	s, ok := e.series[symbol]
	if !ok {
		s = indicator.NewSeries(e.cfg.Lookback)
		e.series[symbol] = s
	}
	return s
}

func (e *Engine) snapshot(symbol string, item *trading.WatchlistItem, s *indicator.Series) *trading.Snapshot {
	last, _ := s.Last()
	bands, vwap := s.Compute(item.BBPeriod, item.BBStdDev, item.VWAPEnabled)
	return &trading.Snapshot{
		Symbol:    symbol,
		Price:     last.Price,
		Bands:     bands,
		VWAP:      vwap,
		Timestamp: last.Timestamp,
	}
}

// Snapshot returns the current indicator state for symbol, or nil when the
// symbol has no ticks yet
func (e *Engine) Snapshot(symbol string) *trading.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	item, ok := e.watch[symbol]
	s, have := e.series[symbol]
	if !ok || !have || s.Len() == 0 {
		return nil
	}
	return e.snapshot(symbol, item, s)
}
