package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/reqgate/internal/migrations"
	"github.com/studiowebux/reqgate/internal/types"
)

// timeLayout has fixed-width fractions so timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Manager stores settled gateway calls in SQLite. It implements
// gateway.Recorder.
type Manager struct {
	db *sql.DB
}

// ListOptions filters List results. Zero values mean no filter.
type ListOptions struct {
	Profile string
	Outcome string
	Limit   int
}

func NewManager(dbPath string) (*Manager, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// batch runs record from many goroutines; serialise writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Manager{db: db}, nil
}

// Record stores one call
func (m *Manager) Record(ctx context.Context, rec types.CallRecord) error {
	if rec.CallID == "" {
		rec.CallID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	query := `
		INSERT INTO calls (
			call_id, timestamp, profile_name, request_name, method, url,
			status, code, outcome, error_kind, message, duration_ms, payload_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.ExecContext(ctx, query,
		rec.CallID,
		rec.Timestamp.UTC().Format(timeLayout),
		rec.ProfileName,
		rec.RequestName,
		rec.Method,
		rec.URL,
		rec.Status,
		rec.Code,
		rec.Outcome,
		rec.ErrorKind,
		rec.Message,
		rec.Duration,
		rec.PayloadSize,
	)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}
	return nil
}

// List returns recorded calls, newest first
func (m *Manager) List(ctx context.Context, opts ListOptions) ([]types.CallRecord, error) {
	where, args := opts.filter()
	query := `
		SELECT id, call_id, timestamp, profile_name, request_name, method, url,
		       status, code, outcome, error_kind, message, duration_ms, payload_size
		FROM calls` + where + `
		ORDER BY timestamp DESC, id DESC`
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var records []types.CallRecord
	for rows.Next() {
		var rec types.CallRecord
		var timestamp string
		if err := rows.Scan(
			&rec.ID, &rec.CallID, &timestamp, &rec.ProfileName, &rec.RequestName,
			&rec.Method, &rec.URL, &rec.Status, &rec.Code, &rec.Outcome,
			&rec.ErrorKind, &rec.Message, &rec.Duration, &rec.PayloadSize,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		rec.Timestamp, err = time.Parse(timeLayout, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", timestamp, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return records, nil
}

// Stats summarises recorded calls for a profile, or all profiles when
// profile is empty
func (m *Manager) Stats(ctx context.Context, profile string) (*types.CallStats, error) {
	where, args := ListOptions{Profile: profile}.filter()

	stats := &types.CallStats{ByKind: make(map[string]int)}
	var avg sql.NullFloat64
	var maxDuration sql.NullInt64
	var last sql.NullString

	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		       AVG(duration_ms), MAX(duration_ms), MAX(timestamp)
		FROM calls`+where,
		append([]any{types.OutcomeSuccess}, args...)...,
	).Scan(&stats.Total, &stats.Successes, &avg, &maxDuration, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	stats.Failures = stats.Total - stats.Successes
	stats.AvgDuration = avg.Float64
	stats.MaxDuration = maxDuration.Int64
	if last.Valid {
		if t, err := time.Parse(timeLayout, last.String); err == nil {
			stats.LastCallTime = &t
		}
	}

	kindWhere := " WHERE error_kind != ''"
	if where != "" {
		kindWhere = where + " AND error_kind != ''"
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT error_kind, COUNT(*) FROM calls`+kindWhere+`
		GROUP BY error_kind`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute error kinds: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan error kinds: %w", err)
		}
		stats.ByKind[kind] = count
	}

	return stats, rows.Err()
}

// Clear deletes recorded calls for a profile, or everything when profile
// is empty. It returns the number of deleted rows.
func (m *Manager) Clear(ctx context.Context, profile string) (int64, error) {
	where, args := ListOptions{Profile: profile}.filter()
	res, err := m.db.ExecContext(ctx, "DELETE FROM calls"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes one call by id
func (m *Manager) Delete(ctx context.Context, id int64) error {
	res, err := m.db.ExecContext(ctx, "DELETE FROM calls WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("history entry not found: %d", id)
	}
	return nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func (o ListOptions) filter() (string, []any) {
	var clauses []string
	var args []any
	if o.Profile != "" {
		clauses = append(clauses, "profile_name = ?")
		args = append(args, o.Profile)
	}
	if o.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, o.Outcome)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
