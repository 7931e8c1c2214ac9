package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
	"github.com/xinguang/signaldesk/pkg/trading/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return storage.NewMemoryStore()
	})
}

func TestFileStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := storage.NewFileStore(filepath.Join(t.TempDir(), "store.json"))
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		return s
	})
}

func TestFileStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.json")

	s, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	settings := trading.NewSettings("u1", decimal.RequireFromString("12345.67"), time.Now())
	if err := s.Tx(ctx, func(tx storage.Tx) error { return tx.UpsertSettings(ctx, settings) }); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should be renamed away, stat err = %v", err)
	}

	reopened, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.GetSettings(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.PaperTradingBalance.Equal(decimal.RequireFromString("12345.67")) {
		t.Errorf("expected balance to survive reopen, got %s", got.PaperTradingBalance)
	}
}

func TestFileStoreSharedPath(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	a, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}

	settings := trading.NewSettings("u1", decimal.NewFromInt(1000), time.Now())
	if err := a.Tx(ctx, func(tx storage.Tx) error { return tx.UpsertSettings(ctx, settings) }); err != nil {
		t.Fatal(err)
	}

	// b opened before the write and must see it
	got, err := b.GetSettings(ctx, "u1")
	if err != nil {
		t.Fatalf("expected settings written through the other store: %v", err)
	}
	if !got.PaperTradingBalance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected balance 1000, got %s", got.PaperTradingBalance)
	}

	err = b.Tx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetSettings(ctx, "u1")
		if err != nil {
			return err
		}
		cur.PaperTradingBalance = cur.PaperTradingBalance.Sub(decimal.NewFromInt(100))
		if err := tx.UpsertSettings(ctx, cur); err != nil {
			return err
		}
		return tx.InsertPaperTrade(ctx, &trading.PaperTrade{UserID: "u1", Symbol: "SPY"})
	})
	if err != nil {
		t.Fatal(err)
	}
	err = a.Tx(ctx, func(tx storage.Tx) error {
		return tx.InsertPaperTrade(ctx, &trading.PaperTrade{UserID: "u1", Symbol: "QQQ"})
	})
	if err != nil {
		t.Fatal(err)
	}

	reopened, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	final, err := reopened.GetSettings(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !final.PaperTradingBalance.Equal(decimal.NewFromInt(900)) {
		t.Errorf("expected balance 900, got %s", final.PaperTradingBalance)
	}
	trades, err := reopened.ListPaperTrades(ctx, storage.TradeFilter{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 {
		t.Errorf("expected trades from both stores, got %d", len(trades))
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.NewFileStore(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	price := decimal.NewFromInt(10)
	pos := &trading.Position{UserID: "u1", Symbol: "SPY", Quantity: 1, AvgCost: price, CurrentPrice: &price, IsOpen: true}
	if err := s.Tx(ctx, func(tx storage.Tx) error { return tx.InsertPosition(ctx, pos) }); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPosition(ctx, "u1", pos.ID)
	if err != nil {
		t.Fatal(err)
	}
	*got.CurrentPrice = decimal.NewFromInt(999)

	again, err := s.GetPosition(ctx, "u1", pos.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !again.CurrentPrice.Equal(decimal.NewFromInt(10)) {
		t.Errorf("stored position was mutated through a returned pointer: %s", again.CurrentPrice)
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := storage.NewMemoryStore().Tx(ctx, func(tx storage.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("expected cancelled tx not to run, err=%v called=%v", err, called)
	}
}
