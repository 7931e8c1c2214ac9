// Package storagetest runs a shared behaviour suite against storage.Store
// implementations.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

// Run exercises store. newStore must return an empty store; user ids are
// unique per call so a shared database is fine.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("SettingsUpsert", func(t *testing.T) { testSettingsUpsert(t, newStore(t)) })
	t.Run("FirstSettingsConcurrent", func(t *testing.T) { testFirstSettingsConcurrent(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("OrderOrdering", func(t *testing.T) { testOrderOrdering(t, newStore(t)) })
	t.Run("PositionLifecycle", func(t *testing.T) { testPositionLifecycle(t, newStore(t)) })
	t.Run("UserScoping", func(t *testing.T) { testUserScoping(t, newStore(t)) })
	t.Run("Watchlist", func(t *testing.T) { testWatchlist(t, newStore(t)) })
	t.Run("Rules", func(t *testing.T) { testRules(t, newStore(t)) })
	t.Run("Signals", func(t *testing.T) { testSignals(t, newStore(t)) })
}

var base = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func userID(t *testing.T) string {
	return "user-" + t.Name() + "-" + time.Now().Format("150405.000000000")
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testSettingsUpsert(t *testing.T, store storage.Store) {
	ctx := context.Background()
	user := userID(t)

	if _, err := store.GetSettings(ctx, user); !errors.Is(err, trading.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s := trading.NewSettings(user, money("100000"), base)
	if err := store.Tx(ctx, func(tx storage.Tx) error { return tx.UpsertSettings(ctx, s) }); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	firstID := s.ID

	s2 := trading.NewSettings(user, money("99499.35"), base.Add(time.Minute))
	if err := store.Tx(ctx, func(tx storage.Tx) error { return tx.UpsertSettings(ctx, s2) }); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.GetSettings(ctx, user)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != firstID {
		t.Errorf("expected upsert to keep id %s, got %s", firstID, got.ID)
	}
	if !got.PaperTradingBalance.Equal(money("99499.35")) {
		t.Errorf("expected balance 99499.35, got %s", got.PaperTradingBalance)
	}
}

// testFirstSettingsConcurrent debits a user with no settings row from
// several transactions at once. Each must see the previous one's balance.
func testFirstSettingsConcurrent(t *testing.T, store storage.Store) {
	ctx := context.Background()
	user := userID(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Tx(ctx, func(tx storage.Tx) error {
				s, err := tx.GetSettings(ctx, user)
				if errors.Is(err, trading.ErrNotFound) {
					s, err = trading.NewSettings(user, money("1000"), base), nil
				}
				if err != nil {
					return err
				}
				s.PaperTradingBalance = s.PaperTradingBalance.Sub(money("100"))
				return tx.UpsertSettings(ctx, s)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("tx: %v", err)
		}
	}

	got, err := store.GetSettings(ctx, user)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.PaperTradingBalance.Equal(money("200")) {
		t.Errorf("expected balance 200 after %d debits, got %s", n, got.PaperTradingBalance)
	}
}

func testTxRollback(t *testing.T, store storage.Store) {
	ctx := context.Background()
	user := userID(t)
	boom := errors.New("boom")

	err := store.Tx(ctx, func(tx storage.Tx) error {
		if err := tx.UpsertSettings(ctx, trading.NewSettings(user, money("1"), base)); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, &trading.Order{UserID: user, Symbol: "SPY", Side: trading.SideBuy,
			Quantity: 1, Status: trading.OrderFilled, CreatedAt: base, UpdatedAt: base}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := store.GetSettings(ctx, user); !errors.Is(err, trading.ErrNotFound) {
		t.Errorf("settings should not exist after rollback, got %v", err)
	}
	orders, err := store.ListOrders(ctx, storage.OrderFilter{UserID: user})
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 {
		t.Errorf("expected no orders after rollback, got %d", len(orders))
	}
}

func testOrderOrdering(t *testing.T, store storage.Store) {
	ctx := context.Background()
	user := userID(t)

	err := store.Tx(ctx, func(tx storage.Tx) error {
		for i, status := range []trading.OrderStatus{trading.OrderFilled, trading.OrderPending, trading.OrderFilled} {
			o := &trading.Order{
				UserID: user, Symbol: "SPY", Side: trading.SideBuy, Quantity: int64(i + 1),
				Status: status, IsPaperTrade: true,
				CreatedAt: base.Add(time.Duration(i) * time.Minute), UpdatedAt: base,
			}
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
			if o.ID == "" {
				t.Error("expected insert to assign an id")
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	all, err := store.ListOrders(ctx, storage.OrderFilter{UserID: user})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Quantity != 3 || all[2].Quantity != 1 {
		t.Fatalf("expected newest first, got %+v", all)
	}

	pending, err := store.ListOrders(ctx, storage.OrderFilter{UserID: user, Statuses: []trading.OrderStatus{trading.OrderPending}})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Quantity != 2 {
		t.Errorf("expected the single pending order, got %+v", pending)
	}

	limited, err := store.ListOrders(ctx, storage.OrderFilter{UserID: user, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("expected limit 2, got %d", len(limited))
	}
}

func testPositionLifecycle(t *testing.T, store storage.Store) {
	ctx := context.Background()
	user := userID(t)

	pos := &trading.Position{
		UserID: user, Symbol: "AAPL", Quantity: 10, AvgCost: money("50"),
		IsOpen: true, IsPaperTrade: true, OpenedAt: base,
	}
	if err := store.Tx(ctx, func(tx storage.Tx) error { return tx.InsertPosition(ctx, pos) }); err != nil {
		t.Fatal(err)
	}

	open, err := store.ListPositions(ctx, storage.PositionFilter{UserID: user, Open: storage.OpenOnly(true)})
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(open))
	}

	closedAt := base.Add(time.Hour)
	price := money("60")
	err = store.Tx(ctx, func(tx storage.Tx) error {
		p, err := tx.GetPosition(ctx, user, pos.ID)
		if err != nil {
			return err
		}
		p.IsOpen = false
		p.ClosedAt = &closedAt
		p.CurrentPrice = &price
		return tx.UpdatePosition(ctx, p)
	})
	if err != nil {
		t.Fatal(err)
	}

	closed, err := store.ListPositions(ctx, storage.PositionFilter{UserID: user, Open: storage.OpenOnly(false)})
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 1 || closed[0].ClosedAt == nil || closed[0].CurrentPrice == nil || !closed[0].CurrentPrice.Equal(price) {
		t.Fatalf("unexpected closed positions %+v", closed)
	}
	if closed[0].OrderID != nil || closed[0].Strike != nil {
		t.Errorf("expected nullable fields to stay nil")
	}
}

func testUserScoping(t *testing.T, store storage.Store) {
	ctx := context.Background()
	owner, other := userID(t), userID(t)+"-other"

	pos := &trading.Position{UserID: owner, Symbol: "SPY", Quantity: 1, AvgCost: money("1"), IsOpen: true, OpenedAt: base}
	if err := store.Tx(ctx, func(tx storage.Tx) error { return tx.InsertPosition(ctx, pos) }); err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetPosition(ctx, other, pos.ID); !errors.Is(err, trading.ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user, got %v", err)
	}
	list, err := store.ListPositions(ctx, storage.PositionFilter{UserID: other})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected no positions for another user, got %d", len(list))
	}
}

func testWatchlist(t *testing.T, store storage.Store) {
	ctx := context.Background()
	user := userID(t)

	for _, sym := range []string{"SPY", "AAPL"} {
		item := trading.NewWatchlistItem(user, sym)
		item.CreatedAt, item.UpdatedAt = base, base
		if err := store.Tx(ctx, func(tx storage.Tx) error { return tx.InsertWatchlistItem(ctx, item) }); err != nil {
			t.Fatal(err)
		}
	}

	dup := trading.NewWatchlistItem(user, "SPY")
	dup.CreatedAt, dup.UpdatedAt = base, base
	err := store.Tx(ctx, func(tx storage.Tx) error { return tx.InsertWatchlistItem(ctx, dup) })
	if !errors.Is(err, trading.ErrInvalidInput) {
		t.Errorf("expected duplicate symbol to be invalid input, got %v", err)
	}

	items, err := store.ListWatchlist(ctx, storage.WatchlistFilter{UserID: user})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Symbol != "AAPL" || items[1].Symbol != "SPY" {
		t.Fatalf("expected symbol order, got %+v", items)
	}

	err = store.Tx(ctx, func(tx storage.Tx) error { return tx.DeleteWatchlistItem(ctx, user, items[0].ID) })
	if err != nil {
		t.Fatal(err)
	}
	err = store.Tx(ctx, func(tx storage.Tx) error { return tx.DeleteWatchlistItem(ctx, user, items[0].ID) })
	if !errors.Is(err, trading.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func testRules(t *testing.T, store storage.Store) {
	ctx := context.Background()
	user := userID(t)

	stop := money("20")
	rules := []*trading.SignalRule{
		trading.NewSignalRule(user, "b-breakout", trading.SignalBBBreakoutUp, trading.StrategyBuyCall),
		trading.NewSignalRule(user, "a-vwap", trading.SignalVWAPCrossDown, trading.StrategyBuyPut),
	}
	rules[0].StopLossPercent = &stop
	rules[1].Enabled = false

	err := store.Tx(ctx, func(tx storage.Tx) error {
		for _, r := range rules {
			r.CreatedAt, r.UpdatedAt = base, base
			if err := tx.InsertSignalRule(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	all, err := store.ListSignalRules(ctx, storage.RuleFilter{UserID: user})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "a-vwap" {
		t.Fatalf("expected name order, got %+v", all)
	}

	enabled, err := store.ListSignalRules(ctx, storage.RuleFilter{UserID: user, SignalType: trading.SignalBBBreakoutUp, EnabledOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 1 || enabled[0].StopLossPercent == nil || !enabled[0].StopLossPercent.Equal(stop) {
		t.Fatalf("unexpected enabled rules %+v", enabled)
	}

	r := enabled[0]
	r.ExpiryDays = 14
	if err := store.Tx(ctx, func(tx storage.Tx) error { return tx.UpdateSignalRule(ctx, r) }); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetSignalRule(ctx, user, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExpiryDays != 14 {
		t.Errorf("expected expiry 14, got %d", got.ExpiryDays)
	}
}

func testSignals(t *testing.T, store storage.Store) {
	ctx := context.Background()
	user := userID(t)

	upper := money("100")
	sigs := []*trading.Signal{
		{UserID: user, Symbol: "SPY", Type: trading.SignalBBBreakoutUp, PriceAtSignal: money("101"), BBUpper: &upper, TriggeredAt: base},
		{UserID: user, Symbol: "SPY", Type: trading.SignalVWAPCrossUp, PriceAtSignal: money("102"), TriggeredAt: base.Add(time.Minute)},
	}
	err := store.Tx(ctx, func(tx storage.Tx) error {
		for _, s := range sigs {
			if err := tx.InsertSignal(ctx, s); err != nil {
				return err
			}
		}
		return tx.MarkSignalExecuted(ctx, user, sigs[0].ID)
	})
	if err != nil {
		t.Fatal(err)
	}

	list, err := store.ListSignals(ctx, storage.SignalFilter{UserID: user})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Type != trading.SignalVWAPCrossUp {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if !list[1].Executed || list[0].Executed {
		t.Errorf("expected only the first signal executed")
	}
	if list[1].BBUpper == nil || !list[1].BBUpper.Equal(upper) || list[0].BBUpper != nil {
		t.Errorf("unexpected band values")
	}

	err = store.Tx(ctx, func(tx storage.Tx) error { return tx.MarkSignalExecuted(ctx, user, "missing") })
	if !errors.Is(err, trading.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
