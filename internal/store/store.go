// Package store keeps a ledger of sessions, stage outcomes and script
// attempts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PolybrainAI/polybrain-core/internal/codegen"
)

// Session statuses.
const (
	StatusRunning         = "running"
	StatusCompleted       = "completed"
	StatusUnaccepted      = "unaccepted"
	StatusBudgetExhausted = "budget_exhausted"
	StatusTransportError  = "transport_error"
	StatusAuthError       = "auth_error"
	StatusInternalError   = "internal_error"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("store: session not found")

// SessionRecord is the row written when a session starts.
type SessionRecord struct {
	ID         string
	DocumentID string
	Transport  string
	StartedAt  time.Time
}

// SessionSummary is one row of the session list.
type SessionSummary struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Transport  string     `json:"transport"`
	Request    string     `json:"request,omitempty"`
	Status     string     `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Attempts   int        `json:"attempts"`
}

// StageEvent is one finished pipeline stage.
type StageEvent struct {
	Stage      string        `json:"stage"`
	Outcome    string        `json:"outcome"`
	Duration   time.Duration `json:"duration"`
	Detail     string        `json:"detail,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// AttemptRecord is one executed script.
type AttemptRecord struct {
	Index      int           `json:"index"`
	Source     string        `json:"source"`
	Stdout     string        `json:"stdout,omitempty"`
	Stderr     string        `json:"stderr,omitempty"`
	ExitCode   int           `json:"exit_code"`
	OK         bool          `json:"ok"`
	Duration   time.Duration `json:"duration"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Ledger is what the pipeline writes and the CLI and MCP server read.
type Ledger interface {
	StartSession(ctx context.Context, rec SessionRecord) error
	SetRequest(ctx context.Context, sessionID, request string) error
	FinishSession(ctx context.Context, sessionID, status, detail string) error
	RecordStage(ctx context.Context, sessionID string, ev StageEvent) error
	RecordAttempt(ctx context.Context, sessionID string, a codegen.Attempt) error
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)
	Session(ctx context.Context, sessionID string) (SessionSummary, error)
	Stages(ctx context.Context, sessionID string) ([]StageEvent, error)
	Attempts(ctx context.Context, sessionID string) ([]AttemptRecord, error)
	Close() error
}

// SQLite is the Ledger backed by a SQLite file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Ledger = (*SQLite)(nil)

// Open opens (and migrates) the ledger at path.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			transport   TEXT NOT NULL DEFAULT '',
			request     TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			ended_at    TEXT
		);

		CREATE TABLE IF NOT EXISTS stage_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			stage       TEXT    NOT NULL,
			outcome     TEXT    NOT NULL,
			duration_ms INTEGER NOT NULL,
			detail      TEXT    NOT NULL DEFAULT '',
			recorded_at TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS code_attempts (
			session_id  TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			attempt     INTEGER NOT NULL,
			source      TEXT    NOT NULL,
			stdout      TEXT    NOT NULL DEFAULT '',
			stderr      TEXT    NOT NULL DEFAULT '',
			exit_code   INTEGER NOT NULL,
			ok          INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			recorded_at TEXT    NOT NULL,
			PRIMARY KEY (session_id, attempt)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_stage_events_session ON stage_events(session_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// StartSession inserts a running session. Starting a known id again is a no-op.
func (s *SQLite) StartSession(ctx context.Context, rec SessionRecord) error {
	started := rec.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, document_id, transport, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.DocumentID, rec.Transport, StatusRunning, formatTime(started),
	)
	if err != nil {
		return fmt.Errorf("store: start session: %w", err)
	}
	return nil
}

// SetRequest stores the user's initial request.
func (s *SQLite) SetRequest(ctx context.Context, sessionID, request string) error {
	return s.update(ctx, "set request", `UPDATE sessions SET request = ? WHERE id = ?`, request, sessionID)
}

// FinishSession records the final status.
func (s *SQLite) FinishSession(ctx context.Context, sessionID, status, detail string) error {
	return s.update(ctx, "finish session",
		`UPDATE sessions SET status = ?, detail = ?, ended_at = ? WHERE id = ?`,
		status, detail, formatTime(s.now()), sessionID,
	)
}

func (s *SQLite) update(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordStage appends a stage event.
func (s *SQLite) RecordStage(ctx context.Context, sessionID string, ev StageEvent) error {
	at := ev.RecordedAt
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_events (session_id, stage, outcome, duration_ms, detail, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, ev.Stage, ev.Outcome, ev.Duration.Milliseconds(), ev.Detail, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("store: record stage: %w", err)
	}
	return nil
}

// RecordAttempt stores one executed script. It satisfies codegen.Recorder.
func (s *SQLite) RecordAttempt(ctx context.Context, sessionID string, a codegen.Attempt) error {
	ok := 0
	if a.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO code_attempts
			(session_id, attempt, source, stdout, stderr, exit_code, ok, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, a.Index, a.Source, a.Stdout, a.Stderr, a.ExitCode, ok, a.Duration.Milliseconds(), formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("store: record attempt: %w", err)
	}
	return nil
}

const summaryColumns = `
	s.id, s.document_id, s.transport, s.request, s.status, s.detail, s.started_at, s.ended_at,
	(SELECT COUNT(*) FROM code_attempts a WHERE a.session_id = s.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (SessionSummary, error) {
	var (
		sum     SessionSummary
		started string
		ended   sql.NullString
	)
	if err := row.Scan(&sum.ID, &sum.DocumentID, &sum.Transport, &sum.Request, &sum.Status, &sum.Detail, &started, &ended, &sum.Attempts); err != nil {
		return SessionSummary{}, err
	}
	sum.StartedAt = parseTime(started)
	if ended.Valid {
		t := parseTime(ended.String)
		sum.EndedAt = &t
	}
	return sum, nil
}

// ListSessions returns the most recent sessions first.
func (s *SQLite) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM sessions s ORDER BY s.started_at DESC, s.id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list sessions: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Session returns one session.
func (s *SQLite) Session(ctx context.Context, sessionID string) (SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM sessions s WHERE s.id = ?`, sessionID)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionSummary{}, ErrNotFound
	}
	if err != nil {
		return SessionSummary{}, fmt.Errorf("store: get session: %w", err)
	}
	return sum, nil
}

// Stages returns a session's stage events in order.
func (s *SQLite) Stages(ctx context.Context, sessionID string) ([]StageEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, outcome, duration_ms, detail, recorded_at FROM stage_events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: stages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StageEvent
	for rows.Next() {
		var (
			ev StageEvent
			ms int64
			at string
		)
		if err := rows.Scan(&ev.Stage, &ev.Outcome, &ms, &ev.Detail, &at); err != nil {
			return nil, fmt.Errorf("store: stages: %w", err)
		}
		ev.Duration = time.Duration(ms) * time.Millisecond
		ev.RecordedAt = parseTime(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Attempts returns a session's script attempts in order.
func (s *SQLite) Attempts(ctx context.Context, sessionID string) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT attempt, source, stdout, stderr, exit_code, ok, duration_ms, recorded_at
		 FROM code_attempts WHERE session_id = ? ORDER BY attempt`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AttemptRecord
	for rows.Next() {
		var (
			a  AttemptRecord
			ok int
			ms int64
			at string
		)
		if err := rows.Scan(&a.Index, &a.Source, &a.Stdout, &a.Stderr, &a.ExitCode, &ok, &ms, &at); err != nil {
			return nil, fmt.Errorf("store: attempts: %w", err)
		}
		a.OK = ok == 1
		a.Duration = time.Duration(ms) * time.Millisecond
		a.RecordedAt = parseTime(at)
		out = append(out, a)
	}
	return out, rows.Err()
}
