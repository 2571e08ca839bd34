// Package audit is the durable ledger of executed queries, saved searches,
// and alert definitions. Records are append-only; the only permitted
// mutation of an existing row is an alert's last-trigger timestamp.
package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/caldera-sec/logsift/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Ledger provides audit storage over SQLite. Each operation performs one
// statement; no transaction spans multiple logical operations, so concurrent
// writers interleave at the storage level but each insert is atomic.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the ledger database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - a 5-second busy timeout for lock contention
//
// Open is idempotent.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect audit db: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent records.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Ping checks storage availability.
func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("audit db ping: %w", err)
	}
	return nil
}

// Record appends one executed-query entry. Callers treat this as
// fire-and-forget: a recording failure must never fail the execution that
// triggered it, so callers log and swallow the returned error.
func (l *Ledger) Record(ctx context.Context, user, index string, hits int, durationMS int64, queryJSON string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO queries (ts, user, idx, hits, duration_ms, query_json) VALUES (?, ?, ?, ?, ?, ?)`,
		l.now().Unix(), user, index, hits, durationMS, queryJSON,
	)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

// List returns the most recent records, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, ts, user, idx, hits, duration_ms, query_json FROM queries ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var r domain.AuditRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.User, &r.Index, &r.Hits, &r.DurationMS, &r.QueryJSON); err != nil {
			return nil, fmt.Errorf("scan query record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query records: %w", err)
	}
	return out, nil
}

// Prune irreversibly deletes records older than maxDays. Returns the number
// of rows removed.
func (l *Ledger) Prune(ctx context.Context, maxDays int) (int64, error) {
	cutoff := l.now().Unix() - int64(maxDays)*86400
	res, err := l.db.ExecContext(ctx, `DELETE FROM queries WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune queries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune queries rows affected: %w", err)
	}
	return n, nil
}

// SaveSearch stores a named query for later re-execution.
func (l *Ledger) SaveSearch(ctx context.Context, name, user, index, queryJSON string) (domain.SavedSearch, error) {
	created := l.now().Unix()
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO saved_searches (name, user, idx, query_json, created_ts) VALUES (?, ?, ?, ?, ?)`,
		name, user, index, queryJSON, created,
	)
	if err != nil {
		return domain.SavedSearch{}, fmt.Errorf("save search: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.SavedSearch{}, fmt.Errorf("save search id: %w", err)
	}
	return domain.SavedSearch{
		ID: id, Name: name, User: user, Index: index,
		QueryJSON: queryJSON, CreatedTS: created,
	}, nil
}

// ListSavedSearches returns saved searches, scoped to a user when non-empty.
func (l *Ledger) ListSavedSearches(ctx context.Context, user string, limit int) ([]domain.SavedSearch, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, name, user, idx, query_json, created_ts FROM saved_searches ORDER BY id DESC LIMIT ?`
	args := []any{limit}
	if user != "" {
		query = `SELECT id, name, user, idx, query_json, created_ts FROM saved_searches WHERE user = ? ORDER BY id DESC LIMIT ?`
		args = []any{user, limit}
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list saved searches: %w", err)
	}
	defer rows.Close()

	var out []domain.SavedSearch
	for rows.Next() {
		var s domain.SavedSearch
		if err := rows.Scan(&s.ID, &s.Name, &s.User, &s.Index, &s.QueryJSON, &s.CreatedTS); err != nil {
			return nil, fmt.Errorf("scan saved search: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved searches: %w", err)
	}
	return out, nil
}

// GetSavedSearch returns one saved search by id.
func (l *Ledger) GetSavedSearch(ctx context.Context, id int64) (domain.SavedSearch, error) {
	var s domain.SavedSearch
	err := l.db.QueryRowContext(ctx,
		`SELECT id, name, user, idx, query_json, created_ts FROM saved_searches WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.User, &s.Index, &s.QueryJSON, &s.CreatedTS)
	if err == sql.ErrNoRows {
		return domain.SavedSearch{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SavedSearch{}, fmt.Errorf("get saved search %d: %w", id, err)
	}
	return s, nil
}

// DeleteSavedSearch removes a saved search owned by user.
func (l *Ledger) DeleteSavedSearch(ctx context.Context, id int64, user string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM saved_searches WHERE id = ? AND user = ?`, id, user)
	if err != nil {
		return fmt.Errorf("delete saved search %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddAlert stores a hit-count trigger.
func (l *Ledger) AddAlert(ctx context.Context, name, user, index string, threshold int, window string) (domain.Alert, error) {
	if window == "" {
		window = "24h"
	}
	created := l.now().Unix()
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO alerts (name, user, idx, threshold, time_window, created_ts) VALUES (?, ?, ?, ?, ?, ?)`,
		name, user, index, threshold, window, created,
	)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("add alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Alert{}, fmt.Errorf("add alert id: %w", err)
	}
	return domain.Alert{
		ID: id, Name: name, User: user, Index: index,
		Threshold: threshold, TimeWindow: window, CreatedTS: created,
	}, nil
}

// ListAlerts returns alerts, scoped to a user when non-empty.
func (l *Ledger) ListAlerts(ctx context.Context, user string, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, name, user, idx, threshold, time_window, last_trigger_ts, created_ts FROM alerts ORDER BY id DESC LIMIT ?`
	args := []any{limit}
	if user != "" {
		query = `SELECT id, name, user, idx, threshold, time_window, last_trigger_ts, created_ts FROM alerts WHERE user = ? ORDER BY id DESC LIMIT ?`
		args = []any{user, limit}
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.Name, &a.User, &a.Index, &a.Threshold, &a.TimeWindow, &a.LastTriggerTS, &a.CreatedTS); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

// GetAlert returns one alert by id.
func (l *Ledger) GetAlert(ctx context.Context, id int64) (domain.Alert, error) {
	var a domain.Alert
	err := l.db.QueryRowContext(ctx,
		`SELECT id, name, user, idx, threshold, time_window, last_trigger_ts, created_ts FROM alerts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.User, &a.Index, &a.Threshold, &a.TimeWindow, &a.LastTriggerTS, &a.CreatedTS)
	if err == sql.ErrNoRows {
		return domain.Alert{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Alert{}, fmt.Errorf("get alert %d: %w", id, err)
	}
	return a, nil
}

// MarkAlertTriggered updates an alert's last-trigger timestamp. This is the
// only permitted mutation of an existing alert row; evaluating whether the
// threshold was crossed is the caller's job.
func (l *Ledger) MarkAlertTriggered(ctx context.Context, id int64) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE alerts SET last_trigger_ts = ? WHERE id = ?`, l.now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("mark alert %d triggered: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteAlert removes an alert owned by user.
func (l *Ledger) DeleteAlert(ctx context.Context, id int64, user string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ? AND user = ?`, id, user)
	if err != nil {
		return fmt.Errorf("delete alert %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
