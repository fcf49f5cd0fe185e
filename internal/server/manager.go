package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/freyahq/intervox/internal/observe"
)

// SessionManager tracks live sessions so the server can report the active
// session gauge and close every connection on shutdown.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	metrics  *observe.Metrics
	log      *slog.Logger
}

// NewSessionManager returns an empty manager. metrics may be nil.
func NewSessionManager(metrics *observe.Metrics, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		metrics:  metrics,
		log:      log,
	}
}

// Add registers a session and bumps the active session gauge.
func (m *SessionManager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	m.log.Info("session opened", "session", s.ID, "interview", s.InterviewID)
}

// Remove deregisters a session and decrements the gauge. Unknown ids are
// ignored.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	m.log.Info("session closed", "session", id)
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll force-closes every live connection. Each session's Run call
// observes the close and releases itself.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.kill()
	}
}
