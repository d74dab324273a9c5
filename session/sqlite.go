package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parley-ai/parley/core"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	id           TEXT NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL,
	tool_calls   TEXT NOT NULL DEFAULT '',
	tool_call_id TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
`

// SQLiteStore is a durable Store backed by a single SQLite database file.
// The monotonically increasing seq column encodes finalize order, so loads
// replay the log exactly as it was written.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// ensures the schema exists. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer; serialize access through one connection
	// rather than surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// CreateSession implements core.Store.
func (s *SQLiteStore) CreateSession(ctx context.Context) (core.Session, error) {
	now := time.Now().UTC()
	sess := core.Session{ID: core.NewID(), CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, '', ?, ?)",
		sess.ID, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return core.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession implements core.Store.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (core.Session, error) {
	var sess core.Session
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?", id,
	).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return core.Session{}, fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// AppendMessages implements core.Store. The batch is written inside one
// transaction together with the session's updated_at bump, so either the
// whole turn lands or nothing does.
func (s *SQLiteStore) AppendMessages(ctx context.Context, sessionID string, msgs []core.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)", sessionID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	if !exists {
		return fmt.Errorf("session %q not found", sessionID)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (session_id, id, role, content, tool_calls, tool_call_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		toolCalls := ""
		if len(m.ToolCalls) > 0 {
			raw, merr := json.Marshal(m.ToolCalls)
			if merr != nil {
				return fmt.Errorf("encode tool calls: %w", merr)
			}
			toolCalls = string(raw)
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, m.ID, string(m.Role), m.Content, toolCalls, m.ToolCallID, m.CreatedAt,
		); err != nil {
			return fmt.Errorf("append messages: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now().UTC(), sessionID,
	); err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	return tx.Commit()
}

// LoadRecent implements core.Store.
func (s *SQLiteStore) LoadRecent(ctx context.Context, sessionID string, limit int) ([]core.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	query := "SELECT id, role, content, tool_calls, tool_call_id, created_at FROM messages WHERE session_id = ? ORDER BY seq"
	args := []any{sessionID}
	if limit > 0 {
		// Take the newest rows, then restore log order below.
		query = "SELECT id, role, content, tool_calls, tool_call_id, created_at FROM (" +
			"SELECT seq, id, role, content, tool_calls, tool_call_id, created_at FROM messages " +
			"WHERE session_id = ? ORDER BY seq DESC LIMIT ?) ORDER BY seq"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.Message
	for rows.Next() {
		var (
			m         core.Message
			role      string
			toolCalls string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &toolCalls, &m.ToolCallID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = core.Role(role)
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return msgs, nil
}

// ListSessions implements core.Store.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int) ([]core.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []core.Session
	for rows.Next() {
		var sess core.Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// RenameSession implements core.Store.
func (s *SQLiteStore) RenameSession(ctx context.Context, sessionID, title string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?",
		title, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %q not found", sessionID)
	}
	return nil
}

// DeleteSession implements core.Store.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %q not found", sessionID)
	}
	return nil
}
