package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// state holds every table. Tables are keyed by record id, except settings
// which are keyed by user id.
type state struct {
	Orders      map[string]trading.Order           `json:"orders"`
	Positions   map[string]trading.Position        `json:"positions"`
	PaperTrades map[string]trading.PaperTrade      `json:"paper_trades"`
	Signals     map[string]trading.Signal          `json:"signals"`
	SignalRules map[string]trading.SignalRule      `json:"signal_rules"`
	Watchlist   map[string]trading.WatchlistItem   `json:"watchlist"`
	Settings    map[string]trading.TradingSettings `json:"settings"`
}

func newState() *state {
	s := &state{}
	s.init()
	return s
}

// init fills nil tables, e.g. after decoding an older snapshot
func (s *state) init() {
	if s.Orders == nil {
		s.Orders = make(map[string]trading.Order)
	}
	if s.Positions == nil {
		s.Positions = make(map[string]trading.Position)
	}
	if s.PaperTrades == nil {
		s.PaperTrades = make(map[string]trading.PaperTrade)
	}
	if s.Signals == nil {
		s.Signals = make(map[string]trading.Signal)
	}
	if s.SignalRules == nil {
		s.SignalRules = make(map[string]trading.SignalRule)
	}
	if s.Watchlist == nil {
		s.Watchlist = make(map[string]trading.WatchlistItem)
	}
	if s.Settings == nil {
		s.Settings = make(map[string]trading.TradingSettings)
	}
}

func cloneMap[T any](m map[string]T) map[string]T {
	out := make(map[string]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies the tables. Stored values never have their pointer fields
// mutated in place, so a shallow copy of each map is enough.
func (s *state) clone() *state {
	return &state{
		Orders:      cloneMap(s.Orders),
		Positions:   cloneMap(s.Positions),
		PaperTrades: cloneMap(s.PaperTrades),
		Signals:     cloneMap(s.Signals),
		SignalRules: cloneMap(s.SignalRules),
		Watchlist:   cloneMap(s.Watchlist),
		Settings:    cloneMap(s.Settings),
	}
}

// MemoryStore is an in-memory record store. Transactions run against a copy
// of the tables which replaces the live tables only on success.
type MemoryStore struct {
	mu   sync.RWMutex
	data *state

	// persist, if set, runs with the new tables before they are swapped in.
	// A persist error aborts the commit.
	persist func(*state) error

	// sync, if set, runs with mu held before every read and transaction. It
	// takes a lock shared with other processes, reloads data from backing
	// storage and returns the function releasing that lock.
	sync func(ctx context.Context, exclusive bool) (func(), error)
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newState()}
}

// Tx runs fn against a private copy of the tables
func (s *MemoryStore) Tx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sync != nil {
		release, err := s.sync(ctx, true)
		if err != nil {
			return err
		}
		defer release()
	}

	work := s.data.clone()
	if err := fn(&memTx{view{work}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.persist != nil {
		if err := s.persist(work); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}

	s.data = work
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

// reader returns a view of the current tables and the function releasing it
func (s *MemoryStore) reader(ctx context.Context) (view, func(), error) {
	if s.sync == nil {
		s.mu.RLock()
		return view{s.data}, s.mu.RUnlock, nil
	}

	// Reloading replaces data, so even readers need the write lock
	s.mu.Lock()
	release, err := s.sync(ctx, false)
	if err != nil {
		s.mu.Unlock()
		return view{}, nil, err
	}
	return view{s.data}, func() {
		release()
		s.mu.Unlock()
	}, nil
}

// GetSettings returns the user's settings
func (s *MemoryStore) GetSettings(ctx context.Context, userID string) (*trading.TradingSettings, error) {
	v, release, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.GetSettings(ctx, userID)
}

// GetPosition returns one position
func (s *MemoryStore) GetPosition(ctx context.Context, userID, id string) (*trading.Position, error) {
	v, release, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.GetPosition(ctx, userID, id)
}

// GetSignalRule returns one rule
func (s *MemoryStore) GetSignalRule(ctx context.Context, userID, id string) (*trading.SignalRule, error) {
	v, release, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.GetSignalRule(ctx, userID, id)
}

// GetWatchlistItem returns one watchlist item
func (s *MemoryStore) GetWatchlistItem(ctx context.Context, userID, id string) (*trading.WatchlistItem, error) {
	v, release, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.GetWatchlistItem(ctx, userID, id)
}

// ListOrders lists orders
func (s *MemoryStore) ListOrders(ctx context.Context, f OrderFilter) ([]*trading.Order, error) {
	v, release, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.ListOrders(ctx, f)
}

// ListPositions lists positions
func (s *MemoryStore) ListPositions(ctx context.Context, f PositionFilter) ([]*trading.Position, error) {
	v, release, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.ListPositions(ctx, f)
}

// ListPaperTrades lists paper trades
func (s *MemoryStore) ListPaperTrades(ctx context.Context, f TradeFilter) ([]*trading.PaperTrade, error) {
	v, release, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.ListPaperTrades(ctx, f)
}

// ListSignals lists signals
func (s *MemoryStore) ListSignals(ctx context.Context, f SignalFilter) ([]*trading.Signal, error) {
	v, release, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.ListSignals(ctx, f)
}

// ListSignalRules lists rules
func (s *MemoryStore) ListSignalRules(ctx context.Context, f RuleFilter) ([]*trading.SignalRule, error) {
	v, release, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.ListSignalRules(ctx, f)
}

// ListWatchlist lists watchlist items
func (s *MemoryStore) ListWatchlist(ctx context.Context, f WatchlistFilter) ([]*trading.WatchlistItem, error) {
	v, release, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.ListWatchlist(ctx, f)
}

// view implements Reader over a set of tables. The caller holds the lock.
type view struct {
	st *state
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, trading.ErrNotFound)
}

func (v view) GetSettings(_ context.Context, userID string) (*trading.TradingSettings, error) {
	s, ok := v.st.Settings[userID]
	if !ok {
		return nil, notFound("settings for user", userID)
	}
	return &s, nil
}

func (v view) GetPosition(_ context.Context, userID, id string) (*trading.Position, error) {
	p, ok := v.st.Positions[id]
	if !ok || p.UserID != userID {
		return nil, notFound("position", id)
	}
	p = copyPosition(p)
	return &p, nil
}

func (v view) GetSignalRule(_ context.Context, userID, id string) (*trading.SignalRule, error) {
	r, ok := v.st.SignalRules[id]
	if !ok || r.UserID != userID {
		return nil, notFound("signal rule", id)
	}
	r = copyRule(r)
	return &r, nil
}

func (v view) GetWatchlistItem(_ context.Context, userID, id string) (*trading.WatchlistItem, error) {
	w, ok := v.st.Watchlist[id]
	if !ok || w.UserID != userID {
		return nil, notFound("watchlist item", id)
	}
	return &w, nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func (v view) ListOrders(_ context.Context, f OrderFilter) ([]*trading.Order, error) {
	out := make([]*trading.Order, 0)
	for _, o := range v.st.Orders {
		if o.UserID != f.UserID || (f.Symbol != "" && o.Symbol != f.Symbol) {
			continue
		}
		if f.PaperOnly && !o.IsPaperTrade {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, o.Status) {
			continue
		}
		o = copyOrder(o)
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return limit(out, f.Limit), nil
}

func hasStatus(statuses []trading.OrderStatus, s trading.OrderStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (v view) ListPositions(_ context.Context, f PositionFilter) ([]*trading.Position, error) {
	out := make([]*trading.Position, 0)
	for _, p := range v.st.Positions {
		if p.UserID != f.UserID || (f.Symbol != "" && p.Symbol != f.Symbol) {
			continue
		}
		if f.Open != nil && p.IsOpen != *f.Open {
			continue
		}
		if f.PaperOnly && !p.IsPaperTrade {
			continue
		}
		p = copyPosition(p)
		out = append(out, &p)
	}

	byClose := f.Open != nil && !*f.Open
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].OpenedAt, out[j].OpenedAt
		if byClose && out[i].ClosedAt != nil && out[j].ClosedAt != nil {
			a, b = *out[i].ClosedAt, *out[j].ClosedAt
		}
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ID < out[j].ID
	})
	return limit(out, f.Limit), nil
}

func (v view) ListPaperTrades(_ context.Context, f TradeFilter) ([]*trading.PaperTrade, error) {
	out := make([]*trading.PaperTrade, 0)
	for _, t := range v.st.PaperTrades {
		if t.UserID != f.UserID || (f.Symbol != "" && t.Symbol != f.Symbol) {
			continue
		}
		if !f.Since.IsZero() && t.ExecutedAt.Before(f.Since) {
			continue
		}
		t = copyTrade(t)
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.After(out[j].ExecutedAt)
		}
		return out[i].ID < out[j].ID
	})
	return limit(out, f.Limit), nil
}

func (v view) ListSignals(_ context.Context, f SignalFilter) ([]*trading.Signal, error) {
	out := make([]*trading.Signal, 0)
	for _, s := range v.st.Signals {
		if s.UserID != f.UserID || (f.Symbol != "" && s.Symbol != f.Symbol) {
			continue
		}
		if f.Type != "" && s.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && s.TriggeredAt.Before(f.Since) {
			continue
		}
		s = copySignal(s)
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TriggeredAt.Equal(out[j].TriggeredAt) {
			return out[i].TriggeredAt.After(out[j].TriggeredAt)
		}
		return out[i].ID < out[j].ID
	})
	return limit(out, f.Limit), nil
}

func (v view) ListSignalRules(_ context.Context, f RuleFilter) ([]*trading.SignalRule, error) {
	out := make([]*trading.SignalRule, 0)
	for _, r := range v.st.SignalRules {
		if r.UserID != f.UserID || (f.SignalType != "" && r.SignalType != f.SignalType) {
			continue
		}
		if f.EnabledOnly && !r.Enabled {
			continue
		}
		r = copyRule(r)
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v view) ListWatchlist(_ context.Context, f WatchlistFilter) ([]*trading.WatchlistItem, error) {
	out := make([]*trading.WatchlistItem, 0)
	for _, w := range v.st.Watchlist {
		if w.UserID != f.UserID || (f.Symbol != "" && !strings.EqualFold(w.Symbol, f.Symbol)) {
			continue
		}
		if f.EnabledOnly && !w.Enabled {
			continue
		}
		out = append(out, &w)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

// memTx adds the Writer methods to a view over the working copy
type memTx struct {
	view
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

func duplicate(kind, id string) error {
	return fmt.Errorf("%s %s already exists", kind, id)
}

func (tx *memTx) InsertOrder(_ context.Context, o *trading.Order) error {
	newID(&o.ID)
	if _, ok := tx.st.Orders[o.ID]; ok {
		return duplicate("order", o.ID)
	}
	tx.st.Orders[o.ID] = copyOrder(*o)
	return nil
}

func (tx *memTx) InsertPosition(_ context.Context, p *trading.Position) error {
	newID(&p.ID)
	if _, ok := tx.st.Positions[p.ID]; ok {
		return duplicate("position", p.ID)
	}
	tx.st.Positions[p.ID] = copyPosition(*p)
	return nil
}

func (tx *memTx) UpdatePosition(_ context.Context, p *trading.Position) error {
	cur, ok := tx.st.Positions[p.ID]
	if !ok || cur.UserID != p.UserID {
		return notFound("position", p.ID)
	}
	tx.st.Positions[p.ID] = copyPosition(*p)
	return nil
}

func (tx *memTx) InsertPaperTrade(_ context.Context, t *trading.PaperTrade) error {
	newID(&t.ID)
	if _, ok := tx.st.PaperTrades[t.ID]; ok {
		return duplicate("paper trade", t.ID)
	}
	tx.st.PaperTrades[t.ID] = copyTrade(*t)
	return nil
}

func (tx *memTx) UpsertSettings(_ context.Context, s *trading.TradingSettings) error {
	if cur, ok := tx.st.Settings[s.UserID]; ok {
		s.ID = cur.ID
		s.CreatedAt = cur.CreatedAt
	}
	newID(&s.ID)
	tx.st.Settings[s.UserID] = *s
	return nil
}

func (tx *memTx) InsertSignal(_ context.Context, s *trading.Signal) error {
	newID(&s.ID)
	if _, ok := tx.st.Signals[s.ID]; ok {
		return duplicate("signal", s.ID)
	}
	tx.st.Signals[s.ID] = copySignal(*s)
	return nil
}

func (tx *memTx) MarkSignalExecuted(_ context.Context, userID, id string) error {
	s, ok := tx.st.Signals[id]
	if !ok || s.UserID != userID {
		return notFound("signal", id)
	}
	s.Executed = true
	tx.st.Signals[id] = s
	return nil
}

func (tx *memTx) InsertSignalRule(_ context.Context, r *trading.SignalRule) error {
	newID(&r.ID)
	if _, ok := tx.st.SignalRules[r.ID]; ok {
		return duplicate("signal rule", r.ID)
	}
	tx.st.SignalRules[r.ID] = copyRule(*r)
	return nil
}

func (tx *memTx) UpdateSignalRule(_ context.Context, r *trading.SignalRule) error {
	cur, ok := tx.st.SignalRules[r.ID]
	if !ok || cur.UserID != r.UserID {
		return notFound("signal rule", r.ID)
	}
	tx.st.SignalRules[r.ID] = copyRule(*r)
	return nil
}

func (tx *memTx) DeleteSignalRule(_ context.Context, userID, id string) error {
	cur, ok := tx.st.SignalRules[id]
	if !ok || cur.UserID != userID {
		return notFound("signal rule", id)
	}
	delete(tx.st.SignalRules, id)
	return nil
}

func (tx *memTx) InsertWatchlistItem(_ context.Context, w *trading.WatchlistItem) error {
	for _, cur := range tx.st.Watchlist {
		if cur.UserID == w.UserID && strings.EqualFold(cur.Symbol, w.Symbol) {
			return &trading.ValidationError{Field: "symbol", Value: w.Symbol, Message: "already on watchlist"}
		}
	}
	newID(&w.ID)
	if _, ok := tx.st.Watchlist[w.ID]; ok {
		return duplicate("watchlist item", w.ID)
	}
	tx.st.Watchlist[w.ID] = *w
	return nil
}

func (tx *memTx) UpdateWatchlistItem(_ context.Context, w *trading.WatchlistItem) error {
	cur, ok := tx.st.Watchlist[w.ID]
	if !ok || cur.UserID != w.UserID {
		return notFound("watchlist item", w.ID)
	}
	for id, other := range tx.st.Watchlist {
		if id != w.ID && other.UserID == w.UserID && strings.EqualFold(other.Symbol, w.Symbol) {
			return &trading.ValidationError{Field: "symbol", Value: w.Symbol, Message: "already on watchlist"}
		}
	}
	tx.st.Watchlist[w.ID] = *w
	return nil
}

func (tx *memTx) DeleteWatchlistItem(_ context.Context, userID, id string) error {
	cur, ok := tx.st.Watchlist[id]
	if !ok || cur.UserID != userID {
		return notFound("watchlist item", id)
	}
	delete(tx.st.Watchlist, id)
	return nil
}
