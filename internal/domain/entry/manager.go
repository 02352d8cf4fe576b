package entry

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/till/internal/domain/pricing"
)

// Manager keeps open sessions by id and evicts idle ones.
type Manager struct {
	deps      Deps
	ttl       time.Duration
	maxActive int
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxActive caps the number of open sessions. Zero means no cap.
func WithMaxActive(n int) ManagerOption {
	return func(m *Manager) {
		m.maxActive = n
	}
}

// NewManager creates a Manager. Sessions idle for longer than ttl are
// removed by Sweep.
func NewManager(deps Deps, ttl time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		deps:     deps,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a new session for the flow. It fails with ErrTooManySessions
// once the cap is reached; existing sessions are never dropped to make room.
func (m *Manager) Open(flow pricing.Flow, editMode bool) (*Session, error) {
	if _, err := pricing.ParseFlow(string(flow)); err != nil {
		return nil, err
	}
	s := newSession(uuid.New().String(), flow, editMode, m.deps, m.now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxActive > 0 && len(m.sessions) >= m.maxActive {
		return nil, ErrTooManySessions
	}
	m.sessions[s.id] = s
	return s, nil
}

// Full reports whether the session cap is reached.
func (m *Manager) Full() bool {
	return m.maxActive > 0 && m.Len() >= m.maxActive
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close discards a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed. A session with a submission in flight is never evicted.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		last, submitting := s.idleSince()
		if submitting || !last.Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) error {
	lg := zctx.From(ctx).Named("entry")
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				lg.Info("Evicted idle sessions",
					zap.Int("evicted", n),
					zap.Int("open", m.Len()),
				)
			}
		}
	}
}
