// Package session runs conversational turns: one session's turns are strictly
// serialized while different sessions proceed concurrently.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scttfrdmn/travelrouter/memory"
)

// DefaultIdleTimeout is how long a session may sit unused before Sweep ends it.
const DefaultIdleTimeout = 30 * time.Minute

// Session is one user's conversation.
type Session struct {
	ID string

	conv *memory.Conversation

	// sem is a one-slot semaphore so waiting for a turn can be cancelled.
	sem chan struct{}

	mu         sync.Mutex
	lastActive time.Time
	ended      bool
}

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) tryLock() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) unlock() {
	<-s.sem
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Conversation returns the session's memory handle.
func (s *Session) Conversation() *memory.Conversation {
	return s.conv
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIdleTimeout sets how long an unused session survives.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithManagerClock overrides time.Now.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager tracks live sessions over a memory.Store.
type Manager struct {
	store  memory.Store
	idle   time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(store memory.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		idle:     DefaultIdleTimeout,
		now:      time.Now,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Create starts a session with a fresh ID.
func (m *Manager) Create() *Session {
	return m.open(uuid.NewString())
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// open returns the live session for id, creating it if needed. IDs the
// manager has not seen are adopted so persistent stores survive restarts.
func (m *Manager) open(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := &Session{
		ID:         id,
		conv:       memory.NewConversation(m.store, id),
		sem:        make(chan struct{}, 1),
		lastActive: m.now(),
	}
	m.sessions[id] = s
	m.logger.Debug("session opened", "session_id", id)
	return s
}

// acquire opens id and takes its turn lock. The caller must call release.
func (m *Manager) acquire(ctx context.Context, id string) (*Session, error) {
	for {
		s := m.open(id)
		if err := s.lock(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		ended := s.ended
		s.mu.Unlock()
		if !ended {
			return s, nil
		}
		// Ended while we waited; retry against a fresh session.
		s.unlock()
	}
}

func (m *Manager) release(s *Session) {
	s.touch(m.now())
	s.unlock()
}

// End clears the session's memory and forgets it. It waits for an in-flight
// turn to finish.
func (m *Manager) End(ctx context.Context, id string) error {
	s, ok := m.Get(id)
	if !ok {
		return memory.NewConversation(m.store, id).Clear(ctx)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	return m.end(ctx, s)
}

// end requires the session's turn lock.
func (m *Manager) end(ctx context.Context, s *Session) error {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()

	m.mu.Lock()
	if m.sessions[s.ID] == s {
		delete(m.sessions, s.ID)
	}
	m.mu.Unlock()

	m.logger.Debug("session ended", "session_id", s.ID)
	return s.conv.Clear(ctx)
}

// Sweep ends sessions idle for longer than the idle timeout and returns how
// many it ended. Sessions mid-turn are skipped.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.idle)
	ended := m.endIdle(ctx, m.idleBefore(cutoff), cutoff)
	if ended > 0 {
		m.logger.Info("swept idle sessions", "count", ended)
	}
	return ended
}

func (m *Manager) idleBefore(cutoff time.Time) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*Session
	for _, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	return stale
}

// endIdle ends each candidate that is still idle once its turn lock is held.
// A turn may have finished after the candidates were collected.
func (m *Manager) endIdle(ctx context.Context, candidates []*Session, cutoff time.Time) int {
	ended := 0
	for _, s := range candidates {
		if !s.tryLock() {
			continue
		}
		if !s.idleSince().Before(cutoff) {
			s.unlock()
			continue
		}
		if err := m.end(ctx, s); err != nil {
			m.logger.Warn("failed to clear idle session", "session_id", s.ID, "error", err)
		}
		s.unlock()
		ended++
	}
	return ended
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
