// Package transcript persists each run's merged timeline to SQLite.
//
// A run opens one session row; merged messages queue in memory and flush
// in batches so the update loop never does file I/O. Saves are idempotent
// per session: re-flushing an already saved message is a no-op.
//
// The Recorder is safe for concurrent use; the underlying sql.DB
// serializes access and the pending queue has its own lock.
package transcript

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/logging"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionInfo describes one recorded run.
type SessionInfo struct {
	ID           string
	StartedAt    time.Time
	EndedAt      time.Time // zero while the session is open
	Sources      []string
	MessageCount int
}

// Recorder owns the transcript database and the current session.
type Recorder struct {
	db *sql.DB

	mu        sync.Mutex
	sessionID string
	pending   []chat.Message
}

// Open creates or opens the transcript database at path and applies the
// schema.
func Open(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	r := &Recorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return r, nil
}

func (r *Recorder) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		sources TEXT NOT NULL,
		message_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		author_name TEXT,
		author_id TEXT,
		role TEXT,
		text TEXT,
		symbols TEXT,
		occurred_at DATETIME NOT NULL,
		received_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session_time ON messages(session_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
	`
	_, err := r.db.Exec(schema)
	return err
}

// BeginSession opens a new session row for the given source set and makes
// it current. Returns the session id.
func (r *Recorder) BeginSession(sources []string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at, sources) VALUES (?, ?, ?)`,
		id, time.Now().UTC(), strings.Join(sources, ","),
	)
	if err != nil {
		return "", fmt.Errorf("failed to begin session: %w", err)
	}

	r.mu.Lock()
	r.sessionID = id
	r.pending = nil
	r.mu.Unlock()
	return id, nil
}

// SessionID returns the current session id, or "" before BeginSession.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Queue parks merged messages for the next flush. Cheap enough to call
// from the update loop.
func (r *Recorder) Queue(msgs []chat.Message) {
	if len(msgs) == 0 {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, msgs...)
	r.mu.Unlock()
}

// PendingCount reports how many messages await the next flush.
func (r *Recorder) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush writes everything queued since the last flush. Returns the number
// of rows actually inserted; messages the session already holds count as
// zero.
func (r *Recorder) Flush() (int, error) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	session := r.sessionID
	r.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if session == "" {
		return 0, fmt.Errorf("no open session")
	}
	return r.saveMessages(session, batch)
}

// SaveMessages writes a batch directly into the current session,
// bypassing the queue.
func (r *Recorder) SaveMessages(msgs []chat.Message) (int, error) {
	r.mu.Lock()
	session := r.sessionID
	r.mu.Unlock()
	if session == "" {
		return 0, fmt.Errorf("no open session")
	}
	return r.saveMessages(session, msgs)
}

func (r *Recorder) saveMessages(session string, msgs []chat.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op after commit.
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO messages
			(session_id, id, source_id, author_name, author_id, role, text, symbols, occurred_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var saved int
	for _, m := range msgs {
		var symbols any
		if len(m.Symbols) > 0 {
			b, err := json.Marshal(m.Symbols)
			if err == nil {
				symbols = string(b)
			}
		}
		res, err := stmt.Exec(
			session, m.ID, m.SourceID,
			m.Author.Name, m.Author.ID, string(m.Role),
			m.Text, symbols,
			m.OccurredAt.UTC(), m.ReceivedAt.UTC(),
		)
		if err != nil {
			logging.Debug("failed to save message", "id", m.ID, "error", err)
			continue
		}
		if rows, err := res.RowsAffected(); err == nil && rows > 0 {
			saved++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return saved, nil
}

// EndSession flushes, stamps the session's end time and message count,
// and clears the current session.
func (r *Recorder) EndSession() error {
	if _, err := r.Flush(); err != nil {
		return err
	}

	r.mu.Lock()
	session := r.sessionID
	r.sessionID = ""
	r.mu.Unlock()
	if session == "" {
		return nil
	}

	_, err := r.db.Exec(`
		UPDATE sessions
		SET ended_at = ?,
		    message_count = (SELECT COUNT(*) FROM messages WHERE session_id = ?)
		WHERE id = ?`,
		time.Now().UTC(), session, session,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// SessionMessages reads back one session's timeline, oldest first.
// limit <= 0 means no limit.
func (r *Recorder) SessionMessages(sessionID string, limit int) ([]chat.Message, error) {
	q := `
		SELECT id, source_id, author_name, author_id, role, text, symbols, occurred_at, received_at
		FROM messages WHERE session_id = ? ORDER BY occurred_at, rowid`
	args := []any{sessionID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		var role string
		var symbols sql.NullString
		if err := rows.Scan(&m.ID, &m.SourceID, &m.Author.Name, &m.Author.ID, &role, &m.Text, &symbols, &m.OccurredAt, &m.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = chat.Role(role)
		if symbols.Valid && symbols.String != "" {
			if err := json.Unmarshal([]byte(symbols.String), &m.Symbols); err != nil {
				logging.Debug("failed to decode symbols", "id", m.ID, "error", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentSessions lists recorded sessions, newest first.
func (r *Recorder) RecentSessions(limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT id, started_at, ended_at, sources, message_count
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var ended sql.NullTime
		var sources string
		if err := rows.Scan(&info.ID, &info.StartedAt, &ended, &sources, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if ended.Valid {
			info.EndedAt = ended.Time
		}
		if sources != "" {
			info.Sources = strings.Split(sources, ",")
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Close closes the database. An open session stays open; a later run can
// still read it.
func (r *Recorder) Close() error {
	return r.db.Close()
}
