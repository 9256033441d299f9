// Package audit keeps an append-only record of every execution attempt:
// the instruction, the verdict it received, and what happened when it
// ran. Rows are only ever inserted, never updated or deleted.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"intentrun/internal/logging"
	"intentrun/internal/policy"
	"intentrun/internal/render"
	"intentrun/internal/sandbox"
)

// Recorder writes attempt records to a sqlite database.
type Recorder struct {
	db     *sql.DB
	dbPath string
	log    *zap.Logger
}

// Entry is one recorded execution attempt.
type Entry struct {
	ID        int64
	RequestID string
	Timestamp time.Time

	Provider string
	Verb     string
	Domain   string
	Literal  string

	Tier     string
	Decision string
	Rule     string
	Reason   string

	Status   string
	ExitCode int
	Duration time.Duration
}

// NewRecorder creates or opens the audit database at dir/audit.db.
func NewRecorder(dir string) (*Recorder, error) {
	dbPath := filepath.Join(dir, "audit.db")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	r := &Recorder{
		db:     db,
		dbPath: dbPath,
		log:    logging.Get(logging.CategoryAudit),
	}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return r, nil
}

// Close closes the database connection.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Recorder) Path() string {
	return r.dbPath
}

func (r *Recorder) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		provider TEXT NOT NULL,
		verb TEXT NOT NULL,
		domain TEXT NOT NULL,
		literal TEXT NOT NULL,
		tier TEXT NOT NULL,
		decision TEXT NOT NULL,
		rule TEXT,
		reason TEXT,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_timestamp ON attempts(timestamp);
	CREATE INDEX IF NOT EXISTS idx_attempts_request ON attempts(request_id);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Record appends one attempt. The stored literal is the redacted form so
// secrets never reach disk.
func (r *Recorder) Record(inst render.Instruction, v policy.Verdict, out sandbox.Outcome) error {
	_, err := r.db.Exec(`
		INSERT INTO attempts (
			request_id, timestamp, provider, verb, domain, literal,
			tier, decision, rule, reason, status, exit_code, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.RequestID,
		time.Now().UTC(),
		inst.Origin.Provider,
		inst.Origin.Verb,
		string(inst.Domain),
		inst.RedactedLiteral(),
		v.Tier.String(),
		v.Decision.String(),
		v.Rule,
		v.Reason,
		out.Status.String(),
		out.ExitCode,
		out.Duration.Milliseconds(),
	)
	if err != nil {
		r.log.Error("failed to record attempt",
			zap.String("request_id", inst.RequestID),
			zap.Error(err))
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Recent returns the latest n attempts, newest first.
func (r *Recorder) Recent(n int) ([]Entry, error) {
	rows, err := r.db.Query(`
		SELECT id, request_id, timestamp, provider, verb, domain, literal,
		       tier, decision, COALESCE(rule, ''), COALESCE(reason, ''),
		       status, exit_code, duration_ms
		FROM attempts
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMs int64
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.Timestamp, &e.Provider, &e.Verb,
			&e.Domain, &e.Literal, &e.Tier, &e.Decision, &e.Rule,
			&e.Reason, &e.Status, &e.ExitCode, &durationMs,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of recorded attempts.
func (r *Recorder) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&n)
	return n, err
}
