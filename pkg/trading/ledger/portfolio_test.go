package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

func TestMarkToMarket(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLedger(store)

	for _, req := range []TradeRequest{buy("SPY", 10, "50"), buy("SPY", 5, "40"), buy("AAPL", 1, "10")} {
		if _, err := l.ExecutePaperTrade(ctx, req); err != nil {
			t.Fatal(err)
		}
	}

	n, err := l.MarkToMarket(ctx, "u1", "spy", d("55"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 SPY positions updated, got %d", n)
	}

	positions, _ := store.ListPositions(ctx, storage.PositionFilter{UserID: "u1", Symbol: "SPY"})
	for _, p := range positions {
		want := d("55").Sub(p.AvgCost).Mul(decimal.NewFromInt(p.Quantity))
		if !p.CurrentPrice.Equal(d("55")) || !p.UnrealizedPnL.Equal(want) {
			t.Errorf("position %s: price %s pnl %s, want pnl %s", p.ID, p.CurrentPrice, p.UnrealizedPnL, want)
		}
	}

	if _, err := l.MarkToMarket(ctx, "u1", "SPY", d("0")); !errors.Is(err, trading.ErrInvalidInput) {
		t.Errorf("expected invalid input for zero price, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLedger(store)

	empty, err := l.Summary(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !empty.Balance.Equal(trading.DefaultPaperBalance) || empty.OpenPositions != 0 || !empty.WinRate().IsZero() {
		t.Errorf("unexpected empty summary %+v", empty)
	}

	win, err := l.ExecutePaperTrade(ctx, buy("AAPL", 10, "50"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.ClosePaperPosition(ctx, "u1", win.Position.ID, d("60")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.ExecutePaperTrade(ctx, buy("SPY", 2, "100")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.MarkToMarket(ctx, "u1", "SPY", d("110")); err != nil {
		t.Fatal(err)
	}

	s, err := l.Summary(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	// 100098.70 - 200.65
	if !s.Balance.Equal(d("99898.05")) {
		t.Errorf("expected balance 99898.05, got %s", s.Balance)
	}
	if s.OpenPositions != 1 || !s.MarketValue.Equal(d("220")) || !s.UnrealizedPnL.Equal(d("20")) {
		t.Errorf("unexpected exposure %+v", s)
	}
	if !s.RealizedPnL.Equal(d("98.7")) || s.TradeCount != 3 || s.WinningTrades != 1 {
		t.Errorf("unexpected results %+v", s)
	}
	if !s.Equity.Equal(d("100118.05")) {
		t.Errorf("expected equity 100118.05, got %s", s.Equity)
	}
	if !s.WinRate().Equal(d("100")) {
		t.Errorf("expected win rate 100, got %s", s.WinRate())
	}
}
