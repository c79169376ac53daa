package session

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/nudge/internal/config"
)

// Manager owns the sessions of a process, one per subject.
type Manager struct {
	cfg  config.Config
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty manager.
func NewManager(cfg config.Config, deps Deps) *Manager {
	return &Manager{cfg: cfg, deps: deps, sessions: make(map[string]*Session)}
}

// Start creates and starts the session for subjectID. Starting a subject
// that already has a session returns the existing one.
func (m *Manager) Start(ctx context.Context, subjectID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[subjectID]; ok {
		return s, nil
	}
	s := New(subjectID, m.cfg, m.deps)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	m.sessions[subjectID] = s
	return s, nil
}

// Get returns the running session for subjectID.
func (m *Manager) Get(subjectID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[subjectID]
	return s, ok
}

// Stop closes and forgets the session for subjectID.
func (m *Manager) Stop(subjectID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[subjectID]
	delete(m.sessions, subjectID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// Subjects lists subjects with a running session, sorted.
func (m *Manager) Subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every session and returns once each has drained or hit its
// drain timeout. Sessions drain concurrently.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
