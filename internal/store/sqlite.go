package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"eodcloser/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	kind             TEXT    NOT NULL,
	local_date       TEXT    NOT NULL,
	fired_at         TEXT    NOT NULL,
	positions        INTEGER NOT NULL DEFAULT 0,
	orders           INTEGER NOT NULL DEFAULT 0,
	positions_closed INTEGER NOT NULL DEFAULT 0,
	positions_failed INTEGER NOT NULL DEFAULT 0,
	orders_cancelled INTEGER NOT NULL DEFAULT 0,
	orders_failed    INTEGER NOT NULL DEFAULT 0,
	realized_pnl     TEXT    NOT NULL DEFAULT '0',
	notify_status    TEXT    NOT NULL DEFAULT '',
	failures         TEXT    NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_runs_local_date ON runs(local_date);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	// One writer; avoids SQLITE_BUSY between the runner and CLI reads.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts a dispatch record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	failures := run.Failures
	if failures == nil {
		failures = []string{}
	}
	fj, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("encoding failures: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (kind, local_date, fired_at, positions, orders,
			positions_closed, positions_failed, orders_cancelled, orders_failed,
			realized_pnl, notify_status, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(run.Kind), run.LocalDate, run.FiredAt.UTC().Format(time.RFC3339Nano),
		run.Positions, run.Orders,
		run.PositionsClosed, run.PositionsFailed, run.OrdersCancelled, run.OrdersFailed,
		run.RealizedPnL.String(), run.NotifyStatus, string(fj),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading run id: %w", err)
	}
	run.ID = id
	return nil
}

// ListRuns returns the most recent dispatch records, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, local_date, fired_at, positions, orders,
			positions_closed, positions_failed, orders_cancelled, orders_failed,
			realized_pnl, notify_status, failures
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		var (
			r        domain.RunRecord
			kind     string
			firedAt  string
			pnl      string
			failures string
		)
		if err := rows.Scan(&r.ID, &kind, &r.LocalDate, &firedAt, &r.Positions, &r.Orders,
			&r.PositionsClosed, &r.PositionsFailed, &r.OrdersCancelled, &r.OrdersFailed,
			&pnl, &r.NotifyStatus, &failures); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Kind = domain.RunKind(kind)
		if r.FiredAt, err = time.Parse(time.RFC3339Nano, firedAt); err != nil {
			return nil, fmt.Errorf("run %d fired_at: %w", r.ID, err)
		}
		if r.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("run %d realized_pnl: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(failures), &r.Failures); err != nil {
			return nil, fmt.Errorf("run %d failures: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
