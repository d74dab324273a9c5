package core

import (
	"context"
	"time"
)

// Session is the durable identity for one ongoing conversation. The message
// log itself is owned by the Store; a conversation actor references a session
// by ID and never shares it with another session's actor.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence boundary for sessions and their message logs.
//
// Contract:
//   - AppendMessages is atomic per batch: either every message of a finalized
//     turn is persisted or none is.
//   - LoadRecent returns messages in finalize order (oldest first); limit <= 0
//     means no limit.
//   - Writes for one session are serialized by the owning conversation actor;
//     implementations must still tolerate concurrent writes across sessions.
type Store interface {
	// CreateSession allocates a new session with a fresh ID.
	CreateSession(ctx context.Context) (Session, error)

	// GetSession returns the session metadata for id.
	GetSession(ctx context.Context, id string) (Session, error)

	// AppendMessages appends an ordered batch of finalized messages to the
	// session log.
	AppendMessages(ctx context.Context, sessionID string, msgs []Message) error

	// LoadRecent returns up to limit most recent messages in finalize order.
	LoadRecent(ctx context.Context, sessionID string, limit int) ([]Message, error)

	// ListSessions returns sessions ordered by most recent activity.
	ListSessions(ctx context.Context, limit, offset int) ([]Session, error)

	// RenameSession sets a human-readable title.
	RenameSession(ctx context.Context, sessionID, title string) error

	// DeleteSession removes the session and its message log.
	DeleteSession(ctx context.Context, sessionID string) error
}
