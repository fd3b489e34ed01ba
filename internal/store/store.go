// Package store persists closed trades to SQLite (§4.4.2/§6): a single
// `trades` table, WAL journal mode, and parameterized reads for the
// scheduler's reporting collaborators.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"spartan-core/internal/simulator"
)

// Store wraps a *sql.DB configured for durable, concurrent-safe
// single-writer trade persistence.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the SQLite file at path, applies the
// required pragmas, and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver serializes writers; one conn avoids "database is locked"

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	interval TEXT NOT NULL,
	entry_time TEXT NOT NULL,
	exit_time TEXT NOT NULL,
	duration_minutes REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	stop_loss REAL NOT NULL,
	take_profit REAL NOT NULL,
	trend_magic_value REAL NOT NULL,
	quantity REAL NOT NULL,
	position_value REAL NOT NULL,
	gross_pnl REAL NOT NULL,
	real_pnl REAL NOT NULL,
	pnl_percentage REAL NOT NULL,
	total_commissions REAL NOT NULL,
	close_reason TEXT NOT NULL,
	is_winner INTEGER NOT NULL,
	trend_magic_color TEXT NOT NULL,
	momentum_color TEXT NOT NULL,
	price_change_pct REAL NOT NULL,
	risk_reward_ratio REAL NOT NULL,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_interval ON trades(interval);
CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the underlying SQLite file is still reachable, used
// by the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendTrade persists one closed trade as a single atomic transaction
// (§4.4.2).
func (s *Store) AppendTrade(ctx context.Context, trade simulator.ClosedTrade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	durationMinutes := trade.ExitTime.Sub(trade.EntryTime).Minutes()
	entryPrice, _ := trade.EntryPrice.Float64()
	exitPrice, _ := trade.ExitPrice.Float64()
	stopLoss, _ := trade.StopLoss.Float64()
	takeProfit, _ := trade.TakeProfit.Float64()
	tmValue, _ := trade.TMValueAtEntry.Float64()
	qty, _ := trade.Quantity.Float64()
	grossPnL, _ := trade.GrossPnL.Float64()
	realPnL, _ := trade.RealizedPnL.Float64()
	totalCommissions, _ := trade.TotalCommissions.Float64()

	positionValue := entryPrice * qty
	pnlPercentage := 0.0
	if positionValue != 0 {
		pnlPercentage = (realPnL / positionValue) * 100
	}

	var priceChangePct float64
	var risk, reward float64
	switch trade.Side {
	case simulator.SideLong:
		priceChangePct = (exitPrice - entryPrice) / entryPrice * 100
		risk = entryPrice - stopLoss
		reward = takeProfit - entryPrice
	case simulator.SideShort:
		priceChangePct = (entryPrice - exitPrice) / entryPrice * 100
		risk = stopLoss - entryPrice
		reward = entryPrice - takeProfit
	}
	riskRewardRatio := 0.0
	if risk > 0 {
		riskRewardRatio = reward / risk
	}

	isWinner := 0
	if trade.IsWinner {
		isWinner = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (
			symbol, side, interval,
			entry_time, exit_time, duration_minutes,
			entry_price, exit_price, stop_loss, take_profit, trend_magic_value,
			quantity, position_value,
			gross_pnl, real_pnl, pnl_percentage, total_commissions,
			close_reason, is_winner,
			trend_magic_color, momentum_color,
			price_change_pct, risk_reward_ratio
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.Symbol, string(trade.Side), trade.Interval,
		trade.EntryTime.UTC().Format(time.RFC3339), trade.ExitTime.UTC().Format(time.RFC3339), durationMinutes,
		entryPrice, exitPrice, stopLoss, takeProfit, tmValue,
		qty, positionValue,
		grossPnL, realPnL, pnlPercentage, totalCommissions,
		string(trade.CloseReason), isWinner,
		trade.TMColorAtEntry, trade.MomentumAtEntry,
		priceChangePct, riskRewardRatio,
	)
	if err != nil {
		return fmt.Errorf("store: insert trade: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// TradeRecord is one row read back from the trades table.
type TradeRecord struct {
	Symbol           string
	Side             string
	Interval         string
	EntryTime        string
	ExitTime         string
	DurationMinutes  float64
	EntryPrice       float64
	ExitPrice        float64
	StopLoss         float64
	TakeProfit       float64
	Quantity         float64
	GrossPnL         float64
	RealPnL          float64
	PnLPercentage    float64
	TotalCommissions float64
	CloseReason      string
	IsWinner         bool
}

// ListByInterval returns trades for an interval, most recent first,
// optionally limited.
func (s *Store) ListByInterval(ctx context.Context, interval string, limit int) ([]TradeRecord, error) {
	query := `SELECT symbol, side, interval, entry_time, exit_time, duration_minutes,
		entry_price, exit_price, stop_loss, take_profit, quantity,
		gross_pnl, real_pnl, pnl_percentage, total_commissions, close_reason, is_winner
		FROM trades WHERE interval = ? ORDER BY entry_time DESC`
	args := []interface{}{interval}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryTrades(ctx, query, args...)
}

// AllTrades returns every trade, most recent first, optionally limited.
func (s *Store) AllTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	query := `SELECT symbol, side, interval, entry_time, exit_time, duration_minutes,
		entry_price, exit_price, stop_loss, take_profit, quantity,
		gross_pnl, real_pnl, pnl_percentage, total_commissions, close_reason, is_winner
		FROM trades ORDER BY entry_time DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryTrades(ctx, query, args...)
}

func (s *Store) queryTrades(ctx context.Context, query string, args ...interface{}) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var r TradeRecord
		var isWinner int
		if err := rows.Scan(&r.Symbol, &r.Side, &r.Interval, &r.EntryTime, &r.ExitTime, &r.DurationMinutes,
			&r.EntryPrice, &r.ExitPrice, &r.StopLoss, &r.TakeProfit, &r.Quantity,
			&r.GrossPnL, &r.RealPnL, &r.PnLPercentage, &r.TotalCommissions, &r.CloseReason, &isWinner); err != nil {
			return nil, fmt.Errorf("store: scan trade: %w", err)
		}
		r.IsWinner = isWinner != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// DistinctIntervals returns every interval with at least one trade.
func (s *Store) DistinctIntervals(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT interval FROM trades ORDER BY interval`)
	if err != nil {
		return nil, fmt.Errorf("store: distinct intervals: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var interval string
		if err := rows.Scan(&interval); err != nil {
			return nil, err
		}
		out = append(out, interval)
	}
	return out, rows.Err()
}

// Summary aggregates totals over a set of trades.
type Summary struct {
	TotalTrades      int
	Wins             int
	WinRate          float64
	BestTrade        float64
	WorstTrade       float64
	AvgDurationMins  float64
	TotalCommissions float64
	TotalRealPnL     float64
	PerSymbol        map[string]int
}

// IntervalSummary implements the per-interval summary read of §4.4.2.
func (s *Store) IntervalSummary(ctx context.Context, interval string) (Summary, error) {
	trades, err := s.ListByInterval(ctx, interval, 0)
	if err != nil {
		return Summary{}, err
	}
	return summarize(trades), nil
}

// TotalSummary implements the cross-interval summary read of §4.4.2.
func (s *Store) TotalSummary(ctx context.Context) (Summary, error) {
	trades, err := s.AllTrades(ctx, 0)
	if err != nil {
		return Summary{}, err
	}
	return summarize(trades), nil
}

func summarize(trades []TradeRecord) Summary {
	sum := Summary{PerSymbol: make(map[string]int)}
	if len(trades) == 0 {
		return sum
	}
	sum.TotalTrades = len(trades)
	sum.BestTrade = trades[0].RealPnL
	sum.WorstTrade = trades[0].RealPnL
	var totalDuration float64
	for _, t := range trades {
		if t.IsWinner {
			sum.Wins++
		}
		if t.RealPnL > sum.BestTrade {
			sum.BestTrade = t.RealPnL
		}
		if t.RealPnL < sum.WorstTrade {
			sum.WorstTrade = t.RealPnL
		}
		totalDuration += t.DurationMinutes
		sum.TotalCommissions += t.TotalCommissions
		sum.TotalRealPnL += t.RealPnL
		sum.PerSymbol[t.Symbol]++
	}
	sum.WinRate = float64(sum.Wins) / float64(sum.TotalTrades) * 100
	sum.AvgDurationMins = totalDuration / float64(sum.TotalTrades)
	return sum
}
