// Package sqlite persists bars, account snapshots and risk state in a
// single SQLite database. Store implements model.BarProvider,
// model.AccountStore and model.RiskStateStore.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trading-signalcore/internal/metrics"
	"trading-signalcore/internal/model"
)

var (
	_ model.BarProvider    = (*Store)(nil)
	_ model.AccountStore   = (*Store)(nil)
	_ model.RiskStateStore = (*Store)(nil)
)

// Store wraps one SQLite database.
type Store struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

// Option customises a Store.
type Option func(*Store)

// WithMetrics records query latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open opens (creating if needed) the database at path with WAL mode and
// ensures the schema exists.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	log.Printf("[sqlite] opened database at %s", path)
	return s, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			tf     TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS balances (
			user_id    TEXT    PRIMARY KEY,
			balance    REAL    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS positions (
			id            TEXT    PRIMARY KEY,
			user_id       TEXT    NOT NULL,
			symbol        TEXT    NOT NULL,
			side          TEXT    NOT NULL,
			entry_price   REAL    NOT NULL,
			stop_loss     REAL,
			take_profit   REAL,
			quantity      REAL    NOT NULL,
			current_price REAL,
			is_auto_trade INTEGER NOT NULL DEFAULT 0,
			opened_at     INTEGER NOT NULL,
			closed_at     INTEGER,
			realized_pnl  REAL    NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_positions_user_closed ON positions (user_id, closed_at);

		CREATE TABLE IF NOT EXISTS risk_cooldowns (
			user_id TEXT    PRIMARY KEY,
			until   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS risk_day_balances (
			user_id TEXT NOT NULL,
			day     TEXT NOT NULL,
			balance REAL NOT NULL,
			PRIMARY KEY (user_id, day)
		);
	`)
	return err
}

// observe records the latency of a query started at start.
func (s *Store) observe(start time.Time) {
	s.metrics.ObserveSQLite(time.Since(start))
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
