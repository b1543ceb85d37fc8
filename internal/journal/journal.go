// Package journal records every executed command in a SQLite database so
// operators can see what ran, when, and which backup protects it.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dashagent/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one executed command.
type Entry struct {
	ID        int64         `json:"id"`
	BatchID   string        `json:"batch_id"`
	Index     int           `json:"index"`
	Action    string        `json:"action"`
	Target    string        `json:"target,omitempty"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	BackupSeq int           `json:"backup_seq,omitempty"` // 0 when no backup was taken
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Filter narrows History results.
type Filter struct {
	BatchID    string
	Action     string
	FailedOnly bool
	Limit      int // 0 means 50
}

// Store is the SQLite-backed journal.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open creates or opens the journal database.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	logging.Journal("journal opened at %s", dbPath)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		action TEXT NOT NULL,
		target TEXT,
		ok INTEGER NOT NULL,
		error TEXT,
		backup_seq INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_commands_batch ON commands(batch_id);
	CREATE INDEX IF NOT EXISTS idx_commands_timestamp ON commands(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends an entry and returns its id.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (batch_id, idx, action, target, ok, error, backup_seq, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BatchID, e.Index, e.Action, e.Target, boolToInt(e.OK), e.Error, e.BackupSeq,
		e.Duration.Milliseconds(), e.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to record command: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read journal id: %w", err)
	}
	logging.JournalDebug("recorded %s #%d %s ok=%v", e.BatchID, e.Index, e.Action, e.OK)
	return id, nil
}

// History returns entries newest first.
func (s *Store) History(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, batch_id, idx, action, COALESCE(target, ''), ok, COALESCE(error, ''),
		backup_seq, duration_ms, timestamp FROM commands WHERE 1=1`
	var args []interface{}
	if f.BatchID != "" {
		query += " AND batch_id = ?"
		args = append(args, f.BatchID)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.FailedOnly {
		query += " AND ok = 0"
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ok int
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Index, &e.Action, &e.Target, &ok, &e.Error,
			&e.BackupSeq, &durationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.OK = ok != 0
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Batches returns the most recent batch ids, newest first.
func (s *Store) Batches(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id FROM commands GROUP BY batch_id ORDER BY MAX(id) DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
