// Package postgres implements the record store on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/storage"
)

//go:embed schema.sql
var schema string

// Store implements storage.Store for PostgreSQL
type Store struct {
	queries
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects to dsn and verifies the connection
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db), nil
}

// New wraps an open database handle
func New(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Tx runs fn inside a database transaction. Settings reads inside fn take a
// row lock so concurrent balance updates for one user serialize.
func (s *Store) Tx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&txn{queries{q: tx, locking: true}}); err != nil {
		return err
	}

	return tx.Commit()
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// queries implements storage.Reader on a *sql.DB or *sql.Tx
type queries struct {
	q       querier
	locking bool
}

// where accumulates filter clauses with positional arguments
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) sql(orderBy string, limit int) string {
	var b strings.Builder
	if len(w.clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(w.clauses, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy)
	if limit > 0 {
		w.args = append(w.args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(w.args))
	}
	return b.String()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, trading.ErrNotFound)
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

// mapError turns constraint violations into validation errors
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		field := pqErr.Constraint
		if field == "watchlist_user_symbol_key" {
			field = "symbol"
		}
		return &trading.ValidationError{Field: field, Message: "already exists"}
	}
	return err
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

const settingsColumns = `id, user_id, auto_trade_enabled, max_daily_trades, max_daily_loss,
	max_position_size, trading_hours_start, trading_hours_end, paper_trading_enabled,
	paper_trading_balance, created_at, updated_at`

func scanSettings(row scanner) (*trading.TradingSettings, error) {
	var s trading.TradingSettings
	err := row.Scan(&s.ID, &s.UserID, &s.AutoTradeEnabled, &s.MaxDailyTrades, &s.MaxDailyLoss,
		&s.MaxPositionSize, &s.TradingHoursStart, &s.TradingHoursEnd, &s.PaperTradingEnabled,
		&s.PaperTradingBalance, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSettings returns the user's settings, locking the row inside a transaction.
// FOR UPDATE locks nothing before the first upsert, so a transaction also
// takes an advisory lock on the user, held until commit.
func (q queries) GetSettings(ctx context.Context, userID string) (*trading.TradingSettings, error) {
	query := `SELECT ` + settingsColumns + ` FROM trading_settings WHERE user_id = $1`
	if q.locking {
		if _, err := q.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
			return nil, err
		}
		query += ` FOR UPDATE`
	}

	s, err := scanSettings(q.q.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("settings for user", userID)
	}
	return s, err
}

const positionColumns = `id, user_id, order_id, symbol, option_type, strike, expiry, quantity,
	avg_cost, current_price, unrealized_pnl, trailing_stop_price, stop_loss_price,
	take_profit_price, is_open, is_paper_trade, opened_at, closed_at`

func scanPosition(row scanner) (*trading.Position, error) {
	var p trading.Position
	err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.Symbol, &p.OptionType, &p.Strike, &p.Expiry,
		&p.Quantity, &p.AvgCost, &p.CurrentPrice, &p.UnrealizedPnL, &p.TrailingStopPrice,
		&p.StopLossPrice, &p.TakeProfitPrice, &p.IsOpen, &p.IsPaperTrade, &p.OpenedAt, &p.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPosition returns one of the user's positions
func (q queries) GetPosition(ctx context.Context, userID, id string) (*trading.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1 AND user_id = $2`
	if q.locking {
		query += ` FOR UPDATE`
	}

	p, err := scanPosition(q.q.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("position", id)
	}
	return p, err
}

const ruleColumns = `id, user_id, name, signal_type, enabled, option_strategy,
	strike_offset_percent, expiry_days, position_size_percent, max_position_value,
	trailing_stop_percent, stop_loss_percent, take_profit_percent, created_at, updated_at`

func scanRule(row scanner) (*trading.SignalRule, error) {
	var r trading.SignalRule
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.SignalType, &r.Enabled, &r.OptionStrategy,
		&r.StrikeOffsetPercent, &r.ExpiryDays, &r.PositionSizePercent, &r.MaxPositionValue,
		&r.TrailingStopPercent, &r.StopLossPercent, &r.TakeProfitPercent, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetSignalRule returns one of the user's rules
func (q queries) GetSignalRule(ctx context.Context, userID, id string) (*trading.SignalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM signal_rules WHERE id = $1 AND user_id = $2`
	r, err := scanRule(q.q.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("signal rule", id)
	}
	return r, err
}

const watchlistColumns = `id, user_id, symbol, enabled, bb_period, bb_std_dev, vwap_enabled,
	created_at, updated_at`

func scanWatchlistItem(row scanner) (*trading.WatchlistItem, error) {
	var w trading.WatchlistItem
	err := row.Scan(&w.ID, &w.UserID, &w.Symbol, &w.Enabled, &w.BBPeriod, &w.BBStdDev,
		&w.VWAPEnabled, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWatchlistItem returns one of the user's watchlist items
func (q queries) GetWatchlistItem(ctx context.Context, userID, id string) (*trading.WatchlistItem, error) {
	query := `SELECT ` + watchlistColumns + ` FROM watchlist WHERE id = $1 AND user_id = $2`
	w, err := scanWatchlistItem(q.q.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("watchlist item", id)
	}
	return w, err
}

const orderColumns = `id, user_id, signal_id, symbol, option_type, strike, expiry, side, quantity,
	limit_price, filled_price, status, strategy, trailing_stop_percent, stop_loss_price,
	take_profit_price, is_paper_trade, created_at, updated_at, filled_at`

func scanOrder(row scanner) (*trading.Order, error) {
	var o trading.Order
	err := row.Scan(&o.ID, &o.UserID, &o.SignalID, &o.Symbol, &o.OptionType, &o.Strike, &o.Expiry,
		&o.Side, &o.Quantity, &o.LimitPrice, &o.FilledPrice, &o.Status, &o.Strategy,
		&o.TrailingStopPercent, &o.StopLossPrice, &o.TakeProfitPrice, &o.IsPaperTrade,
		&o.CreatedAt, &o.UpdatedAt, &o.FilledAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders lists orders newest first
func (q queries) ListOrders(ctx context.Context, f storage.OrderFilter) ([]*trading.Order, error) {
	var w where
	w.add("user_id = $%d", f.UserID)
	if f.Symbol != "" {
		w.add("symbol = $%d", f.Symbol)
	}
	if f.PaperOnly {
		w.raw("is_paper_trade")
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		w.add("status = ANY($%d)", pq.Array(statuses))
	}
	query := `SELECT ` + orderColumns + ` FROM orders` + w.sql("created_at DESC, id", f.Limit)

	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*trading.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListPositions lists positions, closed ones by close time
func (q queries) ListPositions(ctx context.Context, f storage.PositionFilter) ([]*trading.Position, error) {
	var w where
	w.add("user_id = $%d", f.UserID)
	if f.Symbol != "" {
		w.add("symbol = $%d", f.Symbol)
	}
	if f.Open != nil {
		w.add("is_open = $%d", *f.Open)
	}
	if f.PaperOnly {
		w.raw("is_paper_trade")
	}
	orderBy := "opened_at DESC, id"
	if f.Open != nil && !*f.Open {
		orderBy = "closed_at DESC, id"
	}
	query := `SELECT ` + positionColumns + ` FROM positions` + w.sql(orderBy, f.Limit)

	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*trading.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const tradeColumns = `id, user_id, position_id, order_id, symbol, side, quantity, price,
	total_value, commission, realized_pnl, balance_after, executed_at`

// ListPaperTrades lists paper trades newest first
func (q queries) ListPaperTrades(ctx context.Context, f storage.TradeFilter) ([]*trading.PaperTrade, error) {
	var w where
	w.add("user_id = $%d", f.UserID)
	if f.Symbol != "" {
		w.add("symbol = $%d", f.Symbol)
	}
	if !f.Since.IsZero() {
		w.add("executed_at >= $%d", f.Since)
	}
	query := `SELECT ` + tradeColumns + ` FROM paper_trades` + w.sql("executed_at DESC, id", f.Limit)

	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*trading.PaperTrade, 0)
	for rows.Next() {
		var t trading.PaperTrade
		err := rows.Scan(&t.ID, &t.UserID, &t.PositionID, &t.OrderID, &t.Symbol, &t.Side,
			&t.Quantity, &t.Price, &t.TotalValue, &t.Commission, &t.RealizedPnL,
			&t.BalanceAfter, &t.ExecutedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

const signalColumns = `id, user_id, watchlist_id, signal_rule_id, symbol, signal_type,
	price_at_signal, bb_upper, bb_middle, bb_lower, vwap, volume, triggered_at, executed`

// ListSignals lists signals newest first
func (q queries) ListSignals(ctx context.Context, f storage.SignalFilter) ([]*trading.Signal, error) {
	var w where
	w.add("user_id = $%d", f.UserID)
	if f.Symbol != "" {
		w.add("symbol = $%d", f.Symbol)
	}
	if f.Type != "" {
		w.add("signal_type = $%d", string(f.Type))
	}
	if !f.Since.IsZero() {
		w.add("triggered_at >= $%d", f.Since)
	}
	query := `SELECT ` + signalColumns + ` FROM signals` + w.sql("triggered_at DESC, id", f.Limit)

	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*trading.Signal, 0)
	for rows.Next() {
		var s trading.Signal
		err := rows.Scan(&s.ID, &s.UserID, &s.WatchlistID, &s.SignalRuleID, &s.Symbol, &s.Type,
			&s.PriceAtSignal, &s.BBUpper, &s.BBMiddle, &s.BBLower, &s.VWAP, &s.Volume,
			&s.TriggeredAt, &s.Executed)
		if err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// ListSignalRules lists rules by name
func (q queries) ListSignalRules(ctx context.Context, f storage.RuleFilter) ([]*trading.SignalRule, error) {
	var w where
	w.add("user_id = $%d", f.UserID)
	if f.SignalType != "" {
		w.add("signal_type = $%d", string(f.SignalType))
	}
	if f.EnabledOnly {
		w.raw("enabled")
	}
	query := `SELECT ` + ruleColumns + ` FROM signal_rules` + w.sql("name ASC, id", 0)

	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*trading.SignalRule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListWatchlist lists watchlist items by symbol
func (q queries) ListWatchlist(ctx context.Context, f storage.WatchlistFilter) ([]*trading.WatchlistItem, error) {
	var w where
	w.add("user_id = $%d", f.UserID)
	if f.Symbol != "" {
		w.add("upper(symbol) = upper($%d)", f.Symbol)
	}
	if f.EnabledOnly {
		w.raw("enabled")
	}
	query := `SELECT ` + watchlistColumns + ` FROM watchlist` + w.sql("symbol ASC", 0)

	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*trading.WatchlistItem, 0)
	for rows.Next() {
		item, err := scanWatchlistItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// txn adds the storage.Writer methods to queries bound to a *sql.Tx
type txn struct {
	queries
}

func (t *txn) InsertOrder(ctx context.Context, o *trading.Order) error {
	newID(&o.ID)
	_, err := t.q.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		o.ID, o.UserID, o.SignalID, o.Symbol, o.OptionType, o.Strike, o.Expiry, o.Side, o.Quantity,
		o.LimitPrice, o.FilledPrice, o.Status, o.Strategy, o.TrailingStopPercent, o.StopLossPrice,
		o.TakeProfitPrice, o.IsPaperTrade, o.CreatedAt, o.UpdatedAt, o.FilledAt)
	return mapError(err)
}

func (t *txn) InsertPosition(ctx context.Context, p *trading.Position) error {
	newID(&p.ID)
	_, err := t.q.ExecContext(ctx, `INSERT INTO positions (`+positionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		p.ID, p.UserID, p.OrderID, p.Symbol, p.OptionType, p.Strike, p.Expiry, p.Quantity,
		p.AvgCost, p.CurrentPrice, p.UnrealizedPnL, p.TrailingStopPrice, p.StopLossPrice,
		p.TakeProfitPrice, p.IsOpen, p.IsPaperTrade, p.OpenedAt, p.ClosedAt)
	return mapError(err)
}

func (t *txn) UpdatePosition(ctx context.Context, p *trading.Position) error {
	res, err := t.q.ExecContext(ctx, `UPDATE positions SET
		quantity = $3, avg_cost = $4, current_price = $5, unrealized_pnl = $6,
		trailing_stop_price = $7, stop_loss_price = $8, take_profit_price = $9,
		is_open = $10, closed_at = $11
		WHERE id = $1 AND user_id = $2`,
		p.ID, p.UserID, p.Quantity, p.AvgCost, p.CurrentPrice, p.UnrealizedPnL,
		p.TrailingStopPrice, p.StopLossPrice, p.TakeProfitPrice, p.IsOpen, p.ClosedAt)
	if err != nil {
		return err
	}
	return expectOne(res, "position", p.ID)
}

func (t *txn) InsertPaperTrade(ctx context.Context, tr *trading.PaperTrade) error {
	newID(&tr.ID)
	_, err := t.q.ExecContext(ctx, `INSERT INTO paper_trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tr.ID, tr.UserID, tr.PositionID, tr.OrderID, tr.Symbol, tr.Side, tr.Quantity, tr.Price,
		tr.TotalValue, tr.Commission, tr.RealizedPnL, tr.BalanceAfter, tr.ExecutedAt)
	return mapError(err)
}

func (t *txn) UpsertSettings(ctx context.Context, s *trading.TradingSettings) error {
	newID(&s.ID)
	row := t.q.QueryRowContext(ctx, `INSERT INTO trading_settings (`+settingsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			auto_trade_enabled = EXCLUDED.auto_trade_enabled,
			max_daily_trades = EXCLUDED.max_daily_trades,
			max_daily_loss = EXCLUDED.max_daily_loss,
			max_position_size = EXCLUDED.max_position_size,
			trading_hours_start = EXCLUDED.trading_hours_start,
			trading_hours_end = EXCLUDED.trading_hours_end,
			paper_trading_enabled = EXCLUDED.paper_trading_enabled,
			paper_trading_balance = EXCLUDED.paper_trading_balance,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		s.ID, s.UserID, s.AutoTradeEnabled, s.MaxDailyTrades, s.MaxDailyLoss, s.MaxPositionSize,
		s.TradingHoursStart, s.TradingHoursEnd, s.PaperTradingEnabled, s.PaperTradingBalance,
		s.CreatedAt, s.UpdatedAt)
	return row.Scan(&s.ID, &s.CreatedAt)
}

func (t *txn) InsertSignal(ctx context.Context, s *trading.Signal) error {
	newID(&s.ID)
	_, err := t.q.ExecContext(ctx, `INSERT INTO signals (`+signalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.UserID, s.WatchlistID, s.SignalRuleID, s.Symbol, s.Type, s.PriceAtSignal,
		s.BBUpper, s.BBMiddle, s.BBLower, s.VWAP, s.Volume, s.TriggeredAt, s.Executed)
	return mapError(err)
}

func (t *txn) MarkSignalExecuted(ctx context.Context, userID, id string) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE signals SET executed = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return expectOne(res, "signal", id)
}

func (t *txn) InsertSignalRule(ctx context.Context, r *trading.SignalRule) error {
	newID(&r.ID)
	_, err := t.q.ExecContext(ctx, `INSERT INTO signal_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID, r.UserID, r.Name, r.SignalType, r.Enabled, r.OptionStrategy, r.StrikeOffsetPercent,
		r.ExpiryDays, r.PositionSizePercent, r.MaxPositionValue, r.TrailingStopPercent,
		r.StopLossPercent, r.TakeProfitPercent, r.CreatedAt, r.UpdatedAt)
	return mapError(err)
}

func (t *txn) UpdateSignalRule(ctx context.Context, r *trading.SignalRule) error {
	res, err := t.q.ExecContext(ctx, `UPDATE signal_rules SET
		name = $3, signal_type = $4, enabled = $5, option_strategy = $6,
		strike_offset_percent = $7, expiry_days = $8, position_size_percent = $9,
		max_position_value = $10, trailing_stop_percent = $11, stop_loss_percent = $12,
		take_profit_percent = $13, updated_at = $14
		WHERE id = $1 AND user_id = $2`,
		r.ID, r.UserID, r.Name, r.SignalType, r.Enabled, r.OptionStrategy, r.StrikeOffsetPercent,
		r.ExpiryDays, r.PositionSizePercent, r.MaxPositionValue, r.TrailingStopPercent,
		r.StopLossPercent, r.TakeProfitPercent, r.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res, "signal rule", r.ID)
}

func (t *txn) DeleteSignalRule(ctx context.Context, userID, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM signal_rules WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return expectOne(res, "signal rule", id)
}

func (t *txn) InsertWatchlistItem(ctx context.Context, w *trading.WatchlistItem) error {
	newID(&w.ID)
	_, err := t.q.ExecContext(ctx, `INSERT INTO watchlist (`+watchlistColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.UserID, w.Symbol, w.Enabled, w.BBPeriod, w.BBStdDev, w.VWAPEnabled,
		w.CreatedAt, w.UpdatedAt)
	return mapError(err)
}

func (t *txn) UpdateWatchlistItem(ctx context.Context, w *trading.WatchlistItem) error {
	res, err := t.q.ExecContext(ctx, `UPDATE watchlist SET
		symbol = $3, enabled = $4, bb_period = $5, bb_std_dev = $6, vwap_enabled = $7, updated_at = $8
		WHERE id = $1 AND user_id = $2`,
		w.ID, w.UserID, w.Symbol, w.Enabled, w.BBPeriod, w.BBStdDev, w.VWAPEnabled, w.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res, "watchlist item", w.ID)
}

func (t *txn) DeleteWatchlistItem(ctx context.Context, userID, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM watchlist WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return expectOne(res, "watchlist item", id)
}
