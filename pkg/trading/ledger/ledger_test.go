package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

var fixedNow = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger(store storage.Store) *Ledger {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return New(store, opts)
}

func buy(symbol string, qty int64, price string) TradeRequest {
	return TradeRequest{UserID: "u1", Symbol: symbol, Side: trading.SideBuy, Quantity: qty, Price: d(price)}
}

func TestExecutePaperTradeBuy(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLedger(store)

	res, err := l.ExecutePaperTrade(ctx, buy("aapl", 10, "50"))
	if err != nil {
		t.Fatalf("ExecutePaperTrade: %v", err)
	}

	if !res.Balance.Equal(d("99499.35")) {
		t.Errorf("expected balance 99499.35, got %s", res.Balance)
	}
	if res.Order.Status != trading.OrderFilled || res.Order.FilledPrice == nil || !res.Order.FilledPrice.Equal(d("50")) {
		t.Errorf("unexpected order %+v", res.Order)
	}
	if res.Order.FilledAt == nil || !res.Order.FilledAt.Equal(fixedNow) {
		t.Errorf("expected filled_at %v", fixedNow)
	}
	if res.Trade.BalanceAfter.String() != "99499.35" || !res.Trade.Commission.Equal(d("0.65")) || !res.Trade.TotalValue.Equal(d("500")) {
		t.Errorf("unexpected trade %+v", res.Trade)
	}

	positions, err := store.ListPositions(ctx, storage.PositionFilter{UserID: "u1", Open: storage.OpenOnly(true)})
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
	p := positions[0]
	if p.Symbol != "AAPL" || p.Quantity != 10 || !p.AvgCost.Equal(d("50")) || !p.IsPaperTrade {
		t.Errorf("unexpected position %+v", p)
	}

	settings, err := store.GetSettings(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !settings.PaperTradingBalance.Equal(d("99499.35")) {
		t.Errorf("expected persisted balance 99499.35, got %s", settings.PaperTradingBalance)
	}
	if !settings.PaperTradingEnabled || settings.MaxDailyTrades != trading.DefaultMaxDailyTrades {
		t.Errorf("expected default settings row, got %+v", settings)
	}
}

func TestExecutePaperTradeNoMerge(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLedger(store)

	for _, price := range []string{"50", "55"} {
		if _, err := l.ExecutePaperTrade(ctx, buy("SPY", 1, price)); err != nil {
			t.Fatal(err)
		}
	}

	positions, err := store.ListPositions(ctx, storage.PositionFilter{UserID: "u1", Open: storage.OpenOnly(true)})
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 2 {
		t.Errorf("expected one lot per buy, got %d positions", len(positions))
	}
}

func TestExecutePaperTradeSell(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLedger(store)

	res, err := l.ExecutePaperTrade(ctx, TradeRequest{UserID: "u1", Symbol: "SPY", Side: trading.SideSell, Quantity: 2, Price: d("10")})
	if err != nil {
		t.Fatal(err)
	}
	if res.Position != nil {
		t.Error("sell should not open a position")
	}
	if !res.Balance.Equal(d("100019.35")) {
		t.Errorf("expected 100019.35, got %s", res.Balance)
	}
}

func TestExecutePaperTradeInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	opts := DefaultOptions()
	opts.DefaultBalance = d("500")
	l := New(store, opts)

	// 500 + 0.65 exceeds 500
	_, err := l.ExecutePaperTrade(ctx, TradeRequest{UserID: "u1", Symbol: "SPY", Side: trading.SideBuy, Quantity: 10, Price: d("50")})
	if !errors.Is(err, trading.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	orders, _ := store.ListOrders(ctx, storage.OrderFilter{UserID: "u1"})
	positions, _ := store.ListPositions(ctx, storage.PositionFilter{UserID: "u1"})
	trades, _ := store.ListPaperTrades(ctx, storage.TradeFilter{UserID: "u1"})
	if len(orders) != 0 || len(positions) != 0 || len(trades) != 0 {
		t.Errorf("expected no records, got %d orders %d positions %d trades", len(orders), len(positions), len(trades))
	}

	balance, err := l.Balance(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(d("500")) {
		t.Errorf("expected balance unchanged at 500, got %s", balance)
	}

	// exactly enough
	if _, err := l.ExecutePaperTrade(ctx, TradeRequest{UserID: "u1", Symbol: "SPY", Side: trading.SideBuy, Quantity: 1, Price: d("499.35")}); err != nil {
		t.Errorf("expected buy of exactly the balance to succeed, got %v", err)
	}
}

func TestExecutePaperTradeValidation(t *testing.T) {
	l := newTestLedger(storage.NewMemoryStore())

	tests := []struct {
		name string
		req  TradeRequest
		want error
	}{
		{"no user", TradeRequest{Symbol: "SPY", Side: trading.SideBuy, Quantity: 1, Price: d("1")}, trading.ErrNotAuthenticated},
		{"no symbol", TradeRequest{UserID: "u1", Side: trading.SideBuy, Quantity: 1, Price: d("1")}, trading.ErrInvalidInput},
		{"bad side", TradeRequest{UserID: "u1", Symbol: "SPY", Side: "hold", Quantity: 1, Price: d("1")}, trading.ErrInvalidInput},
		{"zero quantity", TradeRequest{UserID: "u1", Symbol: "SPY", Side: trading.SideBuy, Quantity: 0, Price: d("1")}, trading.ErrInvalidInput},
		{"negative price", TradeRequest{UserID: "u1", Symbol: "SPY", Side: trading.SideBuy, Quantity: 1, Price: d("-1")}, trading.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.ExecutePaperTrade(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClosePaperPosition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLedger(store)

	opened, err := l.ExecutePaperTrade(ctx, buy("AAPL", 10, "50"))
	if err != nil {
		t.Fatal(err)
	}

	res, err := l.ClosePaperPosition(ctx, "u1", opened.Position.ID, d("60"))
	if err != nil {
		t.Fatalf("ClosePaperPosition: %v", err)
	}

	if !res.RealizedPnL.Equal(d("98.70")) {
		t.Errorf("expected realized 98.70, got %s", res.RealizedPnL)
	}
	// 99499.35 + 600 - 0.65
	if !res.Balance.Equal(d("100098.70")) {
		t.Errorf("expected balance 100098.70, got %s", res.Balance)
	}
	if res.Trade.Side != trading.SideSell || res.Trade.RealizedPnL == nil || !res.Trade.RealizedPnL.Equal(d("98.7")) {
		t.Errorf("unexpected trade %+v", res.Trade)
	}

	pos, err := store.GetPosition(ctx, "u1", opened.Position.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pos.IsOpen || pos.ClosedAt == nil || !pos.CurrentPrice.Equal(d("60")) || !pos.UnrealizedPnL.Equal(d("98.7")) {
		t.Errorf("unexpected closed position %+v", pos)
	}

	trades, err := store.ListPaperTrades(ctx, storage.TradeFilter{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 {
		t.Errorf("expected 2 trades, got %d", len(trades))
	}

	_, err = l.ClosePaperPosition(ctx, "u1", opened.Position.ID, d("60"))
	if !errors.Is(err, trading.ErrInvalidInput) {
		t.Errorf("expected closing twice to be invalid input, got %v", err)
	}
}

func TestClosePaperPositionSingleCommission(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	one := decimal.NewFromInt(1)
	opts.CloseCommissionMultiplier = &one
	l := New(storage.NewMemoryStore(), opts)

	opened, err := l.ExecutePaperTrade(ctx, buy("AAPL", 10, "50"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := l.ClosePaperPosition(ctx, "u1", opened.Position.ID, d("60"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.RealizedPnL.Equal(d("99.35")) {
		t.Errorf("expected 99.35 with multiplier 1, got %s", res.RealizedPnL)
	}
}

func TestZeroCommission(t *testing.T) {
	ctx := context.Background()
	zero := decimal.Zero
	l := New(storage.NewMemoryStore(), Options{Commission: &zero, CloseCommissionMultiplier: &zero})

	opened, err := l.ExecutePaperTrade(ctx, buy("AAPL", 10, "50"))
	if err != nil {
		t.Fatal(err)
	}
	if !opened.Balance.Equal(d("99500")) {
		t.Errorf("expected balance 99500 with no commission, got %s", opened.Balance)
	}
	res, err := l.ClosePaperPosition(ctx, "u1", opened.Position.ID, d("60"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.RealizedPnL.Equal(d("100")) {
		t.Errorf("expected realized 100 with no commission, got %s", res.RealizedPnL)
	}

	// Unset options still charge the default
	def := New(storage.NewMemoryStore(), Options{})
	if !def.Options().Commission.Equal(DefaultCommission) || !def.Options().CloseCommissionMultiplier.Equal(DefaultCloseCommissionMultiplier) {
		t.Errorf("expected default commission options, got %+v", def.Options())
	}
}

func TestClosePaperPositionErrors(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(storage.NewMemoryStore())

	opened, err := l.ExecutePaperTrade(ctx, buy("AAPL", 1, "50"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		user   string
		id     string
		price  string
		expect error
	}{
		{"unknown position", "u1", "missing", "10", trading.ErrNotFound},
		{"another user's position", "u2", opened.Position.ID, "10", trading.ErrNotFound},
		{"no user", "", opened.Position.ID, "10", trading.ErrNotAuthenticated},
		{"zero price", "u1", opened.Position.ID, "0", trading.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.ClosePaperPosition(ctx, tt.user, tt.id, d(tt.price))
			if !errors.Is(err, tt.expect) {
				t.Errorf("expected %v, got %v", tt.expect, err)
			}
		})
	}
}

var errDisk = errors.New("disk full")

// faultyStore fails one named step inside every transaction
type faultyStore struct {
	storage.Store
	failOn string
}

func (f *faultyStore) Tx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return f.Store.Tx(ctx, func(tx storage.Tx) error {
		return fn(&faultyTx{Tx: tx, failOn: f.failOn})
	})
}

type faultyTx struct {
	storage.Tx
	failOn string
}

func (t *faultyTx) InsertOrder(ctx context.Context, o *trading.Order) error {
	if t.failOn == "insert_order" {
		return errDisk
	}
	return t.Tx.InsertOrder(ctx, o)
}

func (t *faultyTx) InsertPosition(ctx context.Context, p *trading.Position) error {
	if t.failOn == "insert_position" {
		return errDisk
	}
	return t.Tx.InsertPosition(ctx, p)
}

func (t *faultyTx) UpdatePosition(ctx context.Context, p *trading.Position) error {
	if t.failOn == "update_position" {
		return errDisk
	}
	return t.Tx.UpdatePosition(ctx, p)
}

func (t *faultyTx) InsertPaperTrade(ctx context.Context, tr *trading.PaperTrade) error {
	if t.failOn == "insert_paper_trade" {
		return errDisk
	}
	return t.Tx.InsertPaperTrade(ctx, tr)
}

func (t *faultyTx) UpsertSettings(ctx context.Context, s *trading.TradingSettings) error {
	if t.failOn == "upsert_settings" {
		return errDisk
	}
	return t.Tx.UpsertSettings(ctx, s)
}

func TestExecutePaperTradeStoreFailureIsAtomic(t *testing.T) {
	for _, step := range []string{"insert_order", "insert_position", "insert_paper_trade", "upsert_settings"} {
		t.Run(step, func(t *testing.T) {
			ctx := context.Background()
			mem := storage.NewMemoryStore()
			l := newTestLedger(&faultyStore{Store: mem, failOn: step})

			_, err := l.ExecutePaperTrade(ctx, buy("SPY", 10, "50"))
			if !errors.Is(err, trading.ErrStoreFailure) || !errors.Is(err, errDisk) {
				t.Fatalf("expected store failure wrapping disk error, got %v", err)
			}
			var se *trading.StoreError
			if !errors.As(err, &se) || se.Step != step {
				t.Errorf("expected failing step %s, got %v", step, err)
			}

			orders, _ := mem.ListOrders(ctx, storage.OrderFilter{UserID: "u1"})
			positions, _ := mem.ListPositions(ctx, storage.PositionFilter{UserID: "u1"})
			trades, _ := mem.ListPaperTrades(ctx, storage.TradeFilter{UserID: "u1"})
			if len(orders)+len(positions)+len(trades) != 0 {
				t.Errorf("partial state left behind: %d orders %d positions %d trades", len(orders), len(positions), len(trades))
			}
			if _, err := mem.GetSettings(ctx, "u1"); !errors.Is(err, trading.ErrNotFound) {
				t.Errorf("settings should not be written, got %v", err)
			}
		})
	}
}

func TestClosePaperPositionStoreFailureIsAtomic(t *testing.T) {
	for _, step := range []string{"update_position", "insert_paper_trade", "upsert_settings"} {
		t.Run(step, func(t *testing.T) {
			ctx := context.Background()
			mem := storage.NewMemoryStore()
			opened, err := newTestLedger(mem).ExecutePaperTrade(ctx, buy("SPY", 10, "50"))
			if err != nil {
				t.Fatal(err)
			}

			faulty := newTestLedger(&faultyStore{Store: mem, failOn: step})
			_, err = faulty.ClosePaperPosition(ctx, "u1", opened.Position.ID, d("60"))
			var se *trading.StoreError
			if !errors.As(err, &se) || se.Step != step {
				t.Fatalf("expected store failure at %s, got %v", step, err)
			}

			pos, err := mem.GetPosition(ctx, "u1", opened.Position.ID)
			if err != nil {
				t.Fatal(err)
			}
			if !pos.IsOpen {
				t.Error("position should still be open")
			}
			trades, _ := mem.ListPaperTrades(ctx, storage.TradeFilter{UserID: "u1"})
			if len(trades) != 1 {
				t.Errorf("expected only the opening trade, got %d", len(trades))
			}
			settings, _ := mem.GetSettings(ctx, "u1")
			if !settings.PaperTradingBalance.Equal(d("99499.35")) {
				t.Errorf("balance changed to %s", settings.PaperTradingBalance)
			}
		})
	}
}

func TestExecutePaperTradeConcurrentBuys(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLedger(store)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.ExecutePaperTrade(ctx, buy("SPY", 1, "100")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	// 100000 - 25 * 100.65
	balance, err := l.Balance(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(d("97483.75")) {
		t.Errorf("expected 97483.75, got %s", balance)
	}

	trades, _ := store.ListPaperTrades(ctx, storage.TradeFilter{UserID: "u1"})
	if len(trades) != n {
		t.Errorf("expected %d trades, got %d", n, len(trades))
	}
	if l.locks.Held() != 0 {
		t.Errorf("expected all user locks released, %d held", l.locks.Held())
	}
}

func TestExecutePaperTradeSharedFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	// Two processes opening the same store
	var ledgers []*Ledger
	for i := 0; i < 2; i++ {
		store, err := storage.NewFileStore(path)
		if err != nil {
			t.Fatal(err)
		}
		ledgers = append(ledgers, newTestLedger(store))
	}
	for _, l := range ledgers {
		if _, err := l.ExecutePaperTrade(ctx, buy("SPY", 10, "50")); err != nil {
			t.Fatalf("ExecutePaperTrade: %v", err)
		}
	}

	reopened, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	settings, err := reopened.GetSettings(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !settings.PaperTradingBalance.Equal(d("98998.70")) {
		t.Errorf("expected balance 98998.70, got %s", settings.PaperTradingBalance)
	}
	trades, err := reopened.ListPaperTrades(ctx, storage.TradeFilter{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 {
		t.Errorf("expected 2 trades, got %d", len(trades))
	}
}

func TestExecutePaperTradeMarksSignal(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLedger(store)

	sig := &trading.Signal{UserID: "u1", Symbol: "SPY", Type: trading.SignalBBBreakoutUp, PriceAtSignal: d("101"), TriggeredAt: fixedNow}
	if err := store.Tx(ctx, func(tx storage.Tx) error { return tx.InsertSignal(ctx, sig) }); err != nil {
		t.Fatal(err)
	}

	req := buy("SPY", 1, "2.02")
	req.SignalID = &sig.ID
	res, err := l.ExecutePaperTrade(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Order.SignalID == nil || *res.Order.SignalID != sig.ID {
		t.Errorf("expected order to reference signal")
	}

	signals, _ := store.ListSignals(ctx, storage.SignalFilter{UserID: "u1"})
	if len(signals) != 1 || !signals[0].Executed {
		t.Errorf("expected signal marked executed, got %+v", signals)
	}

	missing := "nope"
	req.SignalID = &missing
	if _, err := l.ExecutePaperTrade(ctx, req); !errors.Is(err, trading.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown signal, got %v", err)
	}
}
