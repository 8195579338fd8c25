// Package memory provides conversation memory for inquiry sessions.
//
// A Store is an append-only log of turns keyed by session ID. A Conversation
// binds a Store to one session and is the only handle the router and the
// classifier see, so a session never reads or writes another session's turns.
//
// Implementations:
//   - InMemoryStore: process-local, lost on restart
//   - RedisStore: Redis list per session with optional TTL
//   - SQLiteStore: durable table in a local SQLite file
package memory

import (
	"context"
	"fmt"

	"github.com/scttfrdmn/travelrouter/inquiry"
)

// Store is a session-keyed, append-only log of conversation turns.
//
// Example:
//
//	store := NewInMemoryStore(0)
//	err := store.Append(ctx, "session-123", turn)
//	recent, err := store.Recent(ctx, "session-123", 3)
type Store interface {
	// Append adds a turn to the end of the session's log.
	Append(ctx context.Context, sessionID string, turn inquiry.Turn) error

	// Turns returns every turn for the session, oldest first.
	Turns(ctx context.Context, sessionID string) ([]inquiry.Turn, error)

	// Recent returns at most n of the newest turns, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]inquiry.Turn, error)

	// Clear removes the session's log.
	Clear(ctx context.Context, sessionID string) error
}

// Conversation is one session's view of a Store.
type Conversation struct {
	store     Store
	sessionID string
}

// NewConversation binds store to sessionID.
func NewConversation(store Store, sessionID string) *Conversation {
	return &Conversation{store: store, sessionID: sessionID}
}

// SessionID returns the bound session.
func (c *Conversation) SessionID() string {
	return c.sessionID
}

// Append adds a turn after validating its classification.
func (c *Conversation) Append(ctx context.Context, turn inquiry.Turn) error {
	if turn.Classification == nil {
		return fmt.Errorf("turn %s has no classification", turn.ID)
	}
	if err := turn.Classification.Validate(); err != nil {
		return fmt.Errorf("turn %s: %w", turn.ID, err)
	}
	return c.store.Append(ctx, c.sessionID, turn)
}

// Turns returns every turn, oldest first.
func (c *Conversation) Turns(ctx context.Context) ([]inquiry.Turn, error) {
	return c.store.Turns(ctx, c.sessionID)
}

// Recent returns the last n turns, oldest first.
func (c *Conversation) Recent(ctx context.Context, n int) ([]inquiry.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	return c.store.Recent(ctx, c.sessionID, n)
}

// Clear drops the session's turns.
func (c *Conversation) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, c.sessionID)
}

// tail returns the last n items of turns.
func tail(turns []inquiry.Turn, n int) []inquiry.Turn {
	if n <= 0 {
		return []inquiry.Turn{}
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]inquiry.Turn, len(turns))
	copy(out, turns)
	return out
}
