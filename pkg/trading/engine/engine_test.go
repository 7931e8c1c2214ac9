package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/cache"
	"github.com/xinguang/signaldesk/pkg/trading/ledger"
	"github.com/xinguang/signaldesk/pkg/trading/provider"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

var fixedNow = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

type fixture struct {
	store  *storage.MemoryStore
	ledger *ledger.Ledger
	engine *Engine
	now    time.Time
}

func newFixture(t *testing.T, autoTrade bool) *fixture {
	t.Helper()
	f := &fixture{store: storage.NewMemoryStore(), now: fixedNow}
	clock := func() time.Time { return f.now }

	opts := ledger.DefaultOptions()
	opts.Now = clock
	f.ledger = ledger.New(f.store, opts)

	item := trading.NewWatchlistItem("u1", "SPY")
	item.BBPeriod = 10
	item.VWAPEnabled = false
	f.mustTx(t, func(tx storage.Tx) error {
		return tx.InsertWatchlistItem(context.Background(), item)
	})

	f.engine = New(f.store, f.ledger, cache.NewMemory(time.Hour, 0), nil, Config{
		UserID:    "u1",
		AutoTrade: autoTrade,
		Now:       clock,
	})
	if _, err := f.engine.LoadWatchlist(context.Background()); err != nil {
		t.Fatalf("LoadWatchlist: %v", err)
	}
	return f
}

func (f *fixture) mustTx(t *testing.T, fn func(tx storage.Tx) error) {
	t.Helper()
	if err := f.store.Tx(context.Background(), fn); err != nil {
		t.Fatalf("Tx: %v", err)
	}
}

func (f *fixture) addRule(t *testing.T, name string, st trading.SignalType) *trading.SignalRule {
	t.Helper()
	r := trading.NewSignalRule("u1", name, st, trading.StrategyBuyCall)
	f.mustTx(t, func(tx storage.Tx) error {
		return tx.InsertSignalRule(context.Background(), r)
	})
	return r
}

func (f *fixture) setSettings(t *testing.T, mutate func(s *trading.TradingSettings)) {
	t.Helper()
	s := trading.NewSettings("u1", trading.DefaultPaperBalance, f.now)
	mutate(s)
	f.mustTx(t, func(tx storage.Tx) error {
		return tx.UpsertSettings(context.Background(), s)
	})
}

// breakout feeds ten flat ticks then a jump to 130. Over a ten-tick window
// the jump lands above the upper band (mean 103, sd 9, upper 121), so only
// bb_breakout_up fires.
func (f *fixture) breakout(t *testing.T) *Result {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		ts := f.now.Add(time.Duration(i-10) * time.Minute)
		res, err := f.engine.OnTick(ctx, trading.Tick{Symbol: "spy", Price: 100, Volume: 1000, Timestamp: ts})
		if err != nil {
			t.Fatalf("OnTick: %v", err)
		}
		if len(res.Types) != 0 {
			t.Fatalf("tick %d: expected no signals on flat prices, got %v", i, res.Types)
		}
	}
	res, err := f.engine.OnTick(ctx, trading.Tick{Symbol: "SPY", Price: 130, Volume: 5000, Timestamp: f.now})
	if err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	return res
}

func TestOnTickUnknownSymbol(t *testing.T) {
	f := newFixture(t, false)
	res, err := f.engine.OnTick(context.Background(), trading.Tick{Symbol: "QQQ", Price: 1})
	if err != nil || res != nil {
		t.Errorf("expected nil result for unwatched symbol, got %+v %v", res, err)
	}
}

func TestOnTickRepeatedBar(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := f.engine.OnTick(ctx, trading.Tick{Symbol: "SPY", Price: 100, Volume: 1000, Timestamp: f.now}); err != nil {
			t.Fatalf("OnTick: %v", err)
		}
	}

	f.engine.mu.Lock()
	n := f.engine.seriesFor("SPY").Len()
	f.engine.mu.Unlock()
	if n != 1 {
		t.Errorf("expected a bar polled five times to count once, got series length %d", n)
	}
}

func TestOnTickPersistsUnmatchedSignal(t *testing.T) {
	f := newFixture(t, false)
	res := f.breakout(t)

	if len(res.Types) != 1 || res.Types[0] != trading.SignalBBBreakoutUp {
		t.Fatalf("expected [bb_breakout_up], got %v", res.Types)
	}
	if len(res.Signals) != 1 || res.Signals[0].SignalRuleID != nil {
		t.Fatalf("expected one signal without rule, got %+v", res.Signals)
	}

	sig := res.Signals[0]
	if sig.WatchlistID == nil || sig.BBUpper == nil || sig.VWAP != nil || sig.Volume == nil {
		t.Errorf("unexpected signal fields %+v", sig)
	}
	if !sig.BBUpper.Equal(decimal.NewFromInt(121)) {
		t.Errorf("expected bb_upper 121, got %s", sig.BBUpper)
	}

	stored, err := f.store.ListSignals(context.Background(), storage.SignalFilter{UserID: "u1"})
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected 1 stored signal, got %d %v", len(stored), err)
	}
}

func TestOnTickOneSignalPerMatchingRule(t *testing.T) {
	f := newFixture(t, false)
	a := f.addRule(t, "a", trading.SignalBBBreakoutUp)
	b := f.addRule(t, "b", trading.SignalBBBreakoutUp)
	f.addRule(t, "other", trading.SignalVWAPCrossDown)

	disabled := trading.NewSignalRule("u1", "off", trading.SignalBBBreakoutUp, trading.StrategyBuyPut)
	disabled.Enabled = false
	f.mustTx(t, func(tx storage.Tx) error {
		return tx.InsertSignalRule(context.Background(), disabled)
	})

	res := f.breakout(t)
	if len(res.Signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(res.Signals))
	}
	got := map[string]bool{}
	for _, s := range res.Signals {
		got[*s.SignalRuleID] = true
	}
	if !got[a.ID] || !got[b.ID] {
		t.Errorf("expected signals for rules %s and %s, got %v", a.ID, b.ID, got)
	}
	if len(res.Trades) != 0 {
		t.Errorf("expected no trades with auto trade off, got %d", len(res.Trades))
	}
}

func TestOnTickAutoTrade(t *testing.T) {
	f := newFixture(t, true)
	f.addRule(t, "calls", trading.SignalBBBreakoutUp)
	f.setSettings(t, func(s *trading.TradingSettings) { s.AutoTradeEnabled = true })

	res := f.breakout(t)
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d (skipped: %q)", len(res.Trades), res.Skipped)
	}

	// position value min(5% of 100000, 1000) = 1000; premium 2% of 130 = 2.60
	tr := res.Trades[0]
	if tr.Order.Quantity != 384 {
		t.Errorf("expected quantity 384, got %d", tr.Order.Quantity)
	}
	if !tr.Balance.Equal(decimal.RequireFromString("99000.95")) {
		t.Errorf("expected balance 99000.95, got %s", tr.Balance)
	}
	if tr.Order.SignalID == nil || *tr.Order.SignalID != res.Signals[0].ID {
		t.Errorf("expected order linked to signal")
	}
	if tr.Order.Strike == nil || !tr.Order.Strike.Equal(decimal.RequireFromString("132.6")) {
		t.Errorf("expected strike 132.60, got %v", tr.Order.Strike)
	}

	stored, err := f.store.ListSignals(context.Background(), storage.SignalFilter{UserID: "u1"})
	if err != nil || len(stored) != 1 || !stored[0].Executed {
		t.Errorf("expected stored signal marked executed, got %+v %v", stored, err)
	}
}

func TestOnTickAutoTradeSkipsSellStrategies(t *testing.T) {
	f := newFixture(t, true)
	rule := trading.NewSignalRule("u1", "puts", trading.SignalBBBreakoutUp, trading.StrategySellPut)
	f.mustTx(t, func(tx storage.Tx) error {
		return tx.InsertSignalRule(context.Background(), rule)
	})
	f.setSettings(t, func(s *trading.TradingSettings) { s.AutoTradeEnabled = true })

	res := f.breakout(t)
	if len(res.Signals) != 1 {
		t.Fatalf("expected the signal to be recorded, got %d", len(res.Signals))
	}
	if len(res.Trades) != 0 {
		t.Errorf("expected no trades, got %d", len(res.Trades))
	}
	if res.Skipped != "sell strategies are not auto traded" {
		t.Errorf("unexpected skip reason %q", res.Skipped)
	}

	balance, err := f.ledger.Balance(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(trading.DefaultPaperBalance) {
		t.Errorf("expected balance unchanged, got %s", balance)
	}
}

func TestOnTickAutoTradeGates(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		mutate func(s *trading.TradingSettings)
		seed   func(t *testing.T, f *fixture)
		want   string
	}{
		{
			name:   "settings disabled",
			mutate: func(s *trading.TradingSettings) {},
			want:   "auto trading disabled",
		},
		{
			name: "paper disabled",
			mutate: func(s *trading.TradingSettings) {
				s.AutoTradeEnabled = true
				s.PaperTradingEnabled = false
			},
			want: "paper trading disabled",
		},
		{
			name:   "before open",
			now:    time.Date(2024, 3, 1, 9, 29, 0, 0, time.UTC),
			mutate: func(s *trading.TradingSettings) { s.AutoTradeEnabled = true },
			want:   "outside trading hours",
		},
		{
			name:   "at close",
			now:    time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC),
			mutate: func(s *trading.TradingSettings) { s.AutoTradeEnabled = true },
			want:   "outside trading hours",
		},
		{
			name: "daily trades",
			mutate: func(s *trading.TradingSettings) {
				s.AutoTradeEnabled = true
				s.MaxDailyTrades = 1
			},
			seed: func(t *testing.T, f *fixture) {
				req := ledger.TradeRequest{UserID: "u1", Symbol: "AAPL", Side: trading.SideBuy, Quantity: 1, Price: decimal.NewFromInt(10)}
				if _, err := f.ledger.ExecutePaperTrade(context.Background(), req); err != nil {
					t.Fatal(err)
				}
			},
			want: "daily trade limit reached",
		},
		{
			name: "daily loss",
			mutate: func(s *trading.TradingSettings) {
				s.AutoTradeEnabled = true
				s.MaxDailyLoss = decimal.NewFromInt(5)
			},
			seed: func(t *testing.T, f *fixture) {
				ctx := context.Background()
				req := ledger.TradeRequest{UserID: "u1", Symbol: "AAPL", Side: trading.SideBuy, Quantity: 1, Price: decimal.NewFromInt(10)}
				res, err := f.ledger.ExecutePaperTrade(ctx, req)
				if err != nil {
					t.Fatal(err)
				}
				if _, err := f.ledger.ClosePaperPosition(ctx, "u1", res.Position.ID, decimal.NewFromInt(4)); err != nil {
					t.Fatal(err)
				}
			},
			want: "daily loss limit reached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			if !tt.now.IsZero() {
				f.now = tt.now
			}
			f.addRule(t, "calls", trading.SignalBBBreakoutUp)
			f.setSettings(t, tt.mutate)
			if tt.seed != nil {
				tt.seed(t, f)
			}

			res := f.breakout(t)
			if len(res.Trades) != 0 {
				t.Errorf("expected no trades, got %d", len(res.Trades))
			}
			if res.Skipped != tt.want {
				t.Errorf("expected skip reason %q, got %q", tt.want, res.Skipped)
			}
		})
	}
}

func TestDailyLoss(t *testing.T) {
	pnl := func(s string) *decimal.Decimal {
		v := decimal.RequireFromString(s)
		return &v
	}
	tests := []struct {
		name   string
		trades []*trading.PaperTrade
		want   string
	}{
		{"empty", nil, "0"},
		{"buys only", []*trading.PaperTrade{{}, {}}, "0"},
		{"net loss", []*trading.PaperTrade{{RealizedPnL: pnl("-30")}, {RealizedPnL: pnl("10")}}, "20"},
		{"net gain", []*trading.PaperTrade{{RealizedPnL: pnl("-5")}, {RealizedPnL: pnl("10")}}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DailyLoss(tt.trades); !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	store := storage.NewMemoryStore()
	item := trading.NewWatchlistItem("u1", "SPY")
	if err := store.Tx(context.Background(), func(tx storage.Tx) error {
		return tx.InsertWatchlistItem(context.Background(), item)
	}); err != nil {
		t.Fatal(err)
	}

	feed := provider.NewMockProvider(provider.MockOptions{Seed: 7, Interval: 5 * time.Millisecond})
	e := New(store, ledger.New(store, ledger.Options{}), nil, feed, Config{UserID: "u1"})

	if err := e.Start(context.Background(), provider.Interval1Min); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(context.Background(), provider.Interval1Min); err == nil {
		t.Error("expected error starting twice")
	}

	// warmup seeds a full window from history
	if snap := e.Snapshot("SPY"); snap == nil || snap.Bands == nil {
		t.Errorf("expected warmed-up snapshot with bands, got %+v", snap)
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := e.Stop(); err == nil {
		t.Error("expected error stopping twice")
	}
}

func TestStartEmptyWatchlist(t *testing.T) {
	store := storage.NewMemoryStore()
	feed := provider.NewMockProvider(provider.MockOptions{Seed: 1})
	e := New(store, nil, nil, feed, Config{UserID: "u1"})
	if err := e.Start(context.Background(), provider.Interval1Min); err == nil {
		t.Error("expected error for empty watchlist")
	}
}
