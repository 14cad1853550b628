package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS route_audit (
	id            TEXT PRIMARY KEY,
	request_id    TEXT,
	provider_id   TEXT NOT NULL,
	model_id      TEXT NOT NULL,
	rule_id       TEXT,
	method        TEXT NOT NULL,
	reason        TEXT,
	success       INTEGER NOT NULL,
	latency_ms    INTEGER NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost          REAL NOT NULL,
	error_message TEXT,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_route_audit_created_at ON route_audit(created_at);
CREATE INDEX IF NOT EXISTS idx_route_audit_provider ON route_audit(provider_id);
`

// SQLiteRecorder is a durable audit sink over a local SQLite file. WAL mode
// keeps concurrent readers from blocking the single writer.
type SQLiteRecorder struct {
	db *sql.DB

	mu         sync.Mutex
	insertStmt *sql.Stmt
	recentStmt *sql.Stmt
	closeOnce  sync.Once
}

var _ Recorder = (*SQLiteRecorder)(nil)

// NewSQLiteRecorder opens (or creates) the audit database at path.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("audit db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.prepare(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRecorder) prepare() error {
	var err error
	r.insertStmt, err = r.db.Prepare(`
		INSERT INTO route_audit
			(id, request_id, provider_id, model_id, rule_id, method, reason,
			 success, latency_ms, input_tokens, output_tokens, cost,
			 error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	r.recentStmt, err = r.db.Prepare(`
		SELECT id, request_id, provider_id, model_id, rule_id, method, reason,
		       success, latency_ms, input_tokens, output_tokens, cost,
		       error_message, created_at
		FROM route_audit
		ORDER BY created_at DESC, id
		LIMIT ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}
	return nil
}

// Record appends one entry. An empty ID gets a generated UUID and a zero
// CreatedAt the current time.
func (r *SQLiteRecorder) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.insertStmt.ExecContext(ctx,
		rec.ID, rec.RequestID, rec.ProviderID, rec.ModelID, rec.RuleID,
		rec.Method, rec.Reason, rec.Success, rec.LatencyMs,
		rec.InputTokens, rec.OutputTokens, rec.Cost,
		rec.ErrorMessage, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, most recent first.
func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.Lock()
	rows, err := r.recentStmt.QueryContext(ctx, limit)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.RequestID, &rec.ProviderID, &rec.ModelID, &rec.RuleID,
			&rec.Method, &rec.Reason, &rec.Success, &rec.LatencyMs,
			&rec.InputTokens, &rec.OutputTokens, &rec.Cost,
			&rec.ErrorMessage, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the database handle. Safe to call more than once.
func (r *SQLiteRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.insertStmt != nil {
			r.insertStmt.Close()
		}
		if r.recentStmt != nil {
			r.recentStmt.Close()
		}
		err = r.db.Close()
	})
	return err
}
