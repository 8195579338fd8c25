package memory

import (
	"context"
	"sync"

	"github.com/scttfrdmn/travelrouter/inquiry"
)

// InMemoryStore keeps turns in process memory.
//
// Features:
//   - Fast access (no I/O)
//   - Per-session logs
//   - Optional cap on turns per session (oldest dropped first)
//
// Limitations:
//   - No persistence (data lost on restart)
//
// Example:
//
//	store := NewInMemoryStore(100)
//	conv := NewConversation(store, "session-123")
type InMemoryStore struct {
	maxTurns int
	mu       sync.RWMutex
	// sessionID -> turns, oldest first
	storage map[string][]inquiry.Turn
}

// NewInMemoryStore creates an in-memory store. maxTurns <= 0 means unbounded.
func NewInMemoryStore(maxTurns int) *InMemoryStore {
	return &InMemoryStore{
		maxTurns: maxTurns,
		storage:  make(map[string][]inquiry.Turn),
	}
}

// Append adds a turn to the session's log.
func (m *InMemoryStore) Append(ctx context.Context, sessionID string, turn inquiry.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	turns := append(m.storage[sessionID], turn)
	if m.maxTurns > 0 && len(turns) > m.maxTurns {
		turns = turns[len(turns)-m.maxTurns:]
	}
	m.storage[sessionID] = turns
	return nil
}

// Turns returns a copy of the session's log.
func (m *InMemoryStore) Turns(ctx context.Context, sessionID string) ([]inquiry.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := m.storage[sessionID]
	out := make([]inquiry.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Recent returns the last n turns of the session.
func (m *InMemoryStore) Recent(ctx context.Context, sessionID string, n int) ([]inquiry.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return tail(m.storage[sessionID], n), nil
}

// Clear removes the session's log.
func (m *InMemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.storage, sessionID)
	return nil
}

