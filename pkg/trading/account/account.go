// Package account manages the configuration a user owns: watchlist, signal
// rules and trading settings.
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

// Service wraps the record store with validation and defaults
type Service struct {
	store          storage.Store
	defaultBalance decimal.Decimal
	now            func() time.Time
	logger         *zap.Logger
}

// Options configures a Service
type Options struct {
	// DefaultBalance seeds settings that do not exist yet
	DefaultBalance decimal.Decimal
	Now            func() time.Time
	Logger         *zap.Logger
}

// New creates an account service
func New(store storage.Store, opts Options) *Service {
	if opts.DefaultBalance.IsZero() {
		opts.DefaultBalance = trading.DefaultPaperBalance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		store:          store,
		defaultBalance: opts.DefaultBalance,
		now:            opts.Now,
		logger:         opts.Logger.Named("account"),
	}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// WatchlistPatch holds the watchlist fields to change; nil fields are kept
type WatchlistPatch struct {
	Enabled     *bool
	BBPeriod    *int
	BBStdDev    *float64
	VWAPEnabled *bool
}

// Watchlist lists the user's watchlist by symbol
func (s *Service) Watchlist(ctx context.Context, userID string) ([]*trading.WatchlistItem, error) {
	if userID == "" {
		return nil, trading.ErrNotAuthenticated
	}
	return s.store.ListWatchlist(ctx, storage.WatchlistFilter{UserID: userID})
}

// AddSymbol adds symbol with the default indicator window. Adding a symbol
// already on the list is InvalidInput.
func (s *Service) AddSymbol(ctx context.Context, userID, symbol string, patch WatchlistPatch) (*trading.WatchlistItem, error) {
	if userID == "" {
		return nil, trading.ErrNotAuthenticated
	}
	item := trading.NewWatchlistItem(userID, normalizeSymbol(symbol))
	patch.apply(item)
	if err := item.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	item.CreatedAt, item.UpdatedAt = now, now
	err := s.store.Tx(ctx, func(tx storage.Tx) error {
		return tx.InsertWatchlistItem(ctx, item)
	})
	if err != nil {
		return nil, trading.WrapStore("insert_watchlist", err)
	}
	s.logger.Info("watchlist symbol added", zap.String("user", userID), zap.String("symbol", item.Symbol))
	return item, nil
}

// UpdateWatchlist patches the item with id
func (s *Service) UpdateWatchlist(ctx context.Context, userID, id string, patch WatchlistPatch) (*trading.WatchlistItem, error) {
	if userID == "" {
		return nil, trading.ErrNotAuthenticated
	}
	var item *trading.WatchlistItem
	err := s.store.Tx(ctx, func(tx storage.Tx) error {
		var err error
		item, err = tx.GetWatchlistItem(ctx, userID, id)
		if err != nil {
			return err
		}
		patch.apply(item)
		if err := item.Validate(); err != nil {
			return err
		}
		item.UpdatedAt = s.now()
		return tx.UpdateWatchlistItem(ctx, item)
	})
	if err != nil {
		return nil, trading.WrapStore("update_watchlist", err)
	}
	return item, nil
}

// RemoveSymbol deletes the item with id. Signals that referenced it keep
// their watchlist_id.
func (s *Service) RemoveSymbol(ctx context.Context, userID, id string) error {
	if userID == "" {
		return trading.ErrNotAuthenticated
	}
	err := s.store.Tx(ctx, func(tx storage.Tx) error {
		return tx.DeleteWatchlistItem(ctx, userID, id)
	})
	return trading.WrapStore("delete_watchlist", err)
}

// FindSymbol returns the user's item for symbol
func (s *Service) FindSymbol(ctx context.Context, userID, symbol string) (*trading.WatchlistItem, error) {
	items, err := s.store.ListWatchlist(ctx, storage.WatchlistFilter{UserID: userID, Symbol: normalizeSymbol(symbol)})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &notFound{what: "watchlist symbol", id: normalizeSymbol(symbol)}
	}
	return items[0], nil
}

func (p WatchlistPatch) apply(w *trading.WatchlistItem) {
	if p.Enabled != nil {
		w.Enabled = *p.Enabled
	}
	if p.BBPeriod != nil {
		w.BBPeriod = *p.BBPeriod
	}
	if p.BBStdDev != nil {
		w.BBStdDev = *p.BBStdDev
	}
	if p.VWAPEnabled != nil {
		w.VWAPEnabled = *p.VWAPEnabled
	}
}

type notFound struct {
	what string
	id   string
}

func (e *notFound) Error() string {
	return e.what + " " + e.id + ": not found"
}

func (e *notFound) Unwrap() error {
	return trading.ErrNotFound
}

// isNotFound reports whether err is a not-found error
func isNotFound(err error) bool {
	return errors.Is(err, trading.ErrNotFound)
}
