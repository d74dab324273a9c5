package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parley-ai/parley/core"
)

// InMemoryStore is a volatile Store keeping sessions and their message logs
// in process-local maps. It is safe for concurrent access and best suited for
// tests or ephemeral runs. Returned slices are copies, so callers can never
// mutate internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]core.Session
	logs     map[string][]core.Message
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]core.Session),
		logs:     make(map[string][]core.Message),
	}
}

// CreateSession implements core.Store.
func (s *InMemoryStore) CreateSession(_ context.Context) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	sess := core.Session{ID: core.NewID(), CreatedAt: now, UpdatedAt: now}
	s.sessions[sess.ID] = sess
	return sess, nil
}

// GetSession implements core.Store.
func (s *InMemoryStore) GetSession(_ context.Context, id string) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return core.Session{}, fmt.Errorf("session %q not found", id)
	}
	return sess, nil
}

// AppendMessages implements core.Store. The whole batch lands under one lock
// acquisition, so a reader never observes a partially appended turn.
func (s *InMemoryStore) AppendMessages(_ context.Context, sessionID string, msgs []core.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %q not found", sessionID)
	}
	s.logs[sessionID] = append(s.logs[sessionID], msgs...)
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = sess
	return nil
}

// LoadRecent implements core.Store.
func (s *InMemoryStore) LoadRecent(_ context.Context, sessionID string, limit int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("session %q not found", sessionID)
	}
	log := s.logs[sessionID]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]core.Message, len(log))
	copy(out, log)
	return out, nil
}

// ListSessions implements core.Store.
func (s *InMemoryStore) ListSessions(_ context.Context, limit, offset int) ([]core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]core.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// RenameSession implements core.Store.
func (s *InMemoryStore) RenameSession(_ context.Context, sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %q not found", sessionID)
	}
	sess.Title = title
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = sess
	return nil
}

// DeleteSession implements core.Store.
func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %q not found", sessionID)
	}
	delete(s.sessions, sessionID)
	delete(s.logs, sessionID)
	return nil
}
