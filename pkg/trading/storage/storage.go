// Package storage defines the record store used by the ledger and engine,
// plus in-memory and JSON-file implementations.
//
// Every multi-step mutation goes through Store.Tx: the writes made by fn are
// applied only if fn returns nil. Inside fn, use the Tx only; calling the
// Store's own methods from within fn may deadlock.
package storage

import (
	"context"
	"time"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// Default query limits, matching what the dashboards display
const (
	DefaultOrderLimit          = 100
	DefaultTradeLimit          = 100
	DefaultSignalLimit         = 100
	DefaultClosedPositionLimit = 50
)

// Reader is the query side of the record store
type Reader interface {
	// GetSettings returns the user's trading settings or ErrNotFound
	GetSettings(ctx context.Context, userID string) (*trading.TradingSettings, error)

	// GetPosition returns a position owned by userID or ErrNotFound
	GetPosition(ctx context.Context, userID, id string) (*trading.Position, error)

	GetSignalRule(ctx context.Context, userID, id string) (*trading.SignalRule, error)
	GetWatchlistItem(ctx context.Context, userID, id string) (*trading.WatchlistItem, error)

	// ListOrders returns orders newest first (created_at desc)
	ListOrders(ctx context.Context, f OrderFilter) ([]*trading.Order, error)

	// ListPositions returns positions by opened_at desc, or closed_at desc
	// when filtering for closed positions
	ListPositions(ctx context.Context, f PositionFilter) ([]*trading.Position, error)

	// ListPaperTrades returns trades newest first (executed_at desc)
	ListPaperTrades(ctx context.Context, f TradeFilter) ([]*trading.PaperTrade, error)

	// ListSignals returns signals newest first (triggered_at desc)
	ListSignals(ctx context.Context, f SignalFilter) ([]*trading.Signal, error)

	// ListSignalRules returns rules ordered by name
	ListSignalRules(ctx context.Context, f RuleFilter) ([]*trading.SignalRule, error)

	// ListWatchlist returns items ordered by symbol
	ListWatchlist(ctx context.Context, f WatchlistFilter) ([]*trading.WatchlistItem, error)
}

// Writer is the mutation side of the record store. Inserts assign an id when
// the record has none.
type Writer interface {
	InsertOrder(ctx context.Context, o *trading.Order) error
	InsertPosition(ctx context.Context, p *trading.Position) error
	UpdatePosition(ctx context.Context, p *trading.Position) error
	InsertPaperTrade(ctx context.Context, t *trading.PaperTrade) error

	// UpsertSettings creates or replaces the settings row keyed by user
	UpsertSettings(ctx context.Context, s *trading.TradingSettings) error

	InsertSignal(ctx context.Context, s *trading.Signal) error
	MarkSignalExecuted(ctx context.Context, userID, id string) error

	InsertSignalRule(ctx context.Context, r *trading.SignalRule) error
	UpdateSignalRule(ctx context.Context, r *trading.SignalRule) error
	DeleteSignalRule(ctx context.Context, userID, id string) error

	// InsertWatchlistItem rejects a duplicate symbol for the same user
	InsertWatchlistItem(ctx context.Context, w *trading.WatchlistItem) error
	UpdateWatchlistItem(ctx context.Context, w *trading.WatchlistItem) error
	DeleteWatchlistItem(ctx context.Context, userID, id string) error
}

// Tx is a scoped transaction
type Tx interface {
	Reader
	Writer
}

// Store is the record store
type Store interface {
	Reader

	// Tx runs fn in a transaction, committing only if fn returns nil
	Tx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the store
	Close() error
}

// OrderFilter selects orders
type OrderFilter struct {
	UserID    string
	Symbol    string
	Statuses  []trading.OrderStatus
	PaperOnly bool
	Limit     int // 0 means no limit
}

// PositionFilter selects positions
type PositionFilter struct {
	UserID    string
	Symbol    string
	Open      *bool
	PaperOnly bool
	Limit     int
}

// TradeFilter selects paper trades
type TradeFilter struct {
	UserID string
	Symbol string
	Since  time.Time
	Limit  int
}

// SignalFilter selects signals
type SignalFilter struct {
	UserID string
	Symbol string
	Type   trading.SignalType
	Since  time.Time
	Limit  int
}

// RuleFilter selects signal rules
type RuleFilter struct {
	UserID      string
	SignalType  trading.SignalType
	EnabledOnly bool
}

// WatchlistFilter selects watchlist items
type WatchlistFilter struct {
	UserID      string
	Symbol      string
	EnabledOnly bool
}

// OpenOnly is a convenience for PositionFilter.Open
func OpenOnly(open bool) *bool {
	return &open
}
