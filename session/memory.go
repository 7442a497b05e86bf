package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsmind/opsmind/types"
)

// MemoryStore keeps sessions in process memory. Used in tests and when no
// database path is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	messages map[string][]StoredMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]Session{},
		messages: map[string][]StoredMessage{},
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, metadata map[string]any) (Session, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	now := time.Now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return sess, nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) AppendMessages(_ context.Context, sessionID string, messages []types.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}

	now := time.Now().UTC()
	for i, msg := range filterKnown(sessionID, messages) {
		m.messages[sessionID] = append(m.messages[sessionID], StoredMessage{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      msg.Role,
			Name:      msg.Name,
			Content:   msg.Content,
			CreatedAt: now.Add(time.Duration(i) * time.Nanosecond),
		})
	}
	sess.UpdatedAt = now
	m.sessions[sessionID] = sess
	return nil
}

func (m *MemoryStore) ListMessages(_ context.Context, sessionID string, limit int) ([]StoredMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	stored := m.messages[sessionID]
	if limit <= 0 || limit > len(stored) {
		limit = len(stored)
	}
	out := make([]StoredMessage, limit)
	copy(out, stored[:limit])
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
