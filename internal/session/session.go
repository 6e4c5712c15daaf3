package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"echo-manor/internal/director"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

const defaultTickInterval = 100 * time.Millisecond

// Factory builds the director for a new session.
type Factory func(seed int64) (*director.Director, error)

// Session is one live play session: a director advanced by its own
// fixed-step tick loop.
type Session struct {
	ID        string
	Director  *director.Director
	CreatedAt time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// run advances the director on a fixed step until stopped. The step is
// the tick interval in seconds, so simulated time tracks wall time.
func (s *Session) run(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	step := interval.Seconds()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Director.Tick(step)
		}
	}
}

// Done is closed once the tick loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop halts the tick loop and releases the director. Safe to call more
// than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.Director.Close()
	})
}

// Manager owns every live session.
type Manager struct {
	factory  Factory
	interval time.Duration
	logger   *log.Logger

	sessions map[string]*Session

	// Thread safety
	mutex sync.RWMutex
}

// NewManager creates a session manager. Sessions tick every
// tickInterval; non-positive values fall back to the default.
func NewManager(factory Factory, tickInterval time.Duration, logger *log.Logger) *Manager {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Manager{
		factory:  factory,
		interval: tickInterval,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session around a fresh director and begins its
// tick loop.
func (m *Manager) Create(seed int64) (*Session, error) {
	d, err := m.factory(seed)
	if err != nil {
		return nil, fmt.Errorf("build director: %w", err)
	}

	s := &Session{
		ID:        uuid.NewString(),
		Director:  d,
		CreatedAt: time.Now(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	m.mutex.Lock()
	m.sessions[s.ID] = s
	m.mutex.Unlock()

	go s.run(m.interval)

	m.logger.Printf("[Session] created %s (seed %d)", s.ID, seed)
	return s, nil
}

// Get returns the live session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Stop halts one session and forgets it.
func (m *Manager) Stop(id string) error {
	m.mutex.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mutex.Unlock()

	if !ok {
		return ErrNotFound
	}

	s.Stop()
	m.logger.Printf("[Session] stopped %s", id)
	return nil
}

// StopAll halts every live session. Used at shutdown.
func (m *Manager) StopAll() {
	m.mutex.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
