package livesync

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"example.com/fittrack/internal/offline"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger overrides the manager logger.
func WithManagerLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerNotifier sets the notifier shared by every session.
func WithManagerNotifier(n Notifier) ManagerOption {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithDrainTimeout bounds the drain triggered when connectivity returns.
func WithDrainTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.drainTimeout = d
	}
}

// WithIdleTimeout sets how long a session may go unused before Sweep releases it.
// Zero keeps sessions until Release or Close.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// WithReloadBackoff sets the minimum gap between reloads of a session whose load failed.
func WithReloadBackoff(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.reloadBackoff = d
	}
}

// WithManagerClock overrides the clock used for idle and reload bookkeeping.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager holds one session per user and fans connectivity transitions out to them.
type Manager struct {
	backend       Backend
	subs          Subscriber
	queue         *offline.Queue
	monitor       *Monitor
	notifier      Notifier
	logger        *log.Logger
	drainTimeout  time.Duration
	idleTimeout   time.Duration
	reloadBackoff time.Duration
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*managed
	closed   bool
	drains   sync.WaitGroup
}

type managed struct {
	session  *Session
	lastUsed time.Time
	loadedAt time.Time
}

// NewManager wires a manager to monitor. Sessions consult the monitor on every write.
func NewManager(backend Backend, subs Subscriber, queue *offline.Queue, monitor *Monitor, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:       backend,
		subs:          subs,
		queue:         queue,
		monitor:       monitor,
		notifier:      NotifierFunc(func(Notification) {}),
		logger:        log.New(log.Writer(), "[livesync] ", log.LstdFlags|log.Lshortfile),
		drainTimeout:  time.Minute,
		reloadBackoff: 30 * time.Second,
		now:           time.Now,
		sessions:      make(map[string]*managed),
	}
	for _, opt := range opts {
		opt(m)
	}
	monitor.OnChange(m.connectivityChanged)
	return m
}

// Session returns the user's session, creating and loading it on first use. A session
// whose load partially failed is still returned and kept, together with the error. Such a
// session is loaded again on a later call once the backend is online and the reload
// backoff has passed, and whenever connectivity comes back.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("manager closed")
	}
	now := m.now()
	if entry, ok := m.sessions[userID]; ok {
		entry.lastUsed = now
		s := entry.session
		reload := s.Stale() && m.monitor.Online() && now.Sub(entry.loadedAt) >= m.reloadBackoff
		if reload {
			entry.loadedAt = now
		}
		m.mu.Unlock()
		if reload {
			if err := s.Reload(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
				m.logger.Printf("reload for %s: %v", userID, err)
			}
		}
		return s, nil
	}
	s := NewSession(m.backend, m.subs, m.queue,
		WithLogger(m.logger),
		WithNotifier(m.notifier),
		WithConnectivity(m.monitor),
	)
	m.sessions[userID] = &managed{session: s, lastUsed: now, loadedAt: now}
	sessionsGauge.Inc()
	m.mu.Unlock()

	return s, s.SetUser(ctx, userID)
}

// Lookup returns the user's session if one exists.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// Release closes and forgets the user's session.
func (m *Manager) Release(userID string) error {
	m.mu.Lock()
	entry, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	sessionsGauge.Dec()
	return entry.session.Close()
}

// Sweep releases every session unused for longer than the idle timeout and returns how
// many it released.
func (m *Manager) Sweep() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	m.mu.Lock()
	cutoff := m.now().Add(-m.idleTimeout)
	var idle []string
	for userID, entry := range m.sessions {
		if entry.lastUsed.Before(cutoff) {
			idle = append(idle, userID)
		}
	}
	m.mu.Unlock()

	released := 0
	for _, userID := range idle {
		if err := m.Release(userID); err != nil {
			m.logger.Printf("release idle session %s: %v", userID, err)
		}
		released++
	}
	if released > 0 {
		m.logger.Printf("released %d idle sessions", released)
	}
	return released
}

// RunSweeper calls Sweep on every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if m.idleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Monitor returns the connectivity monitor.
func (m *Manager) Monitor() *Monitor { return m.monitor }

func (m *Manager) connectivityChanged(online bool) {
	kind, message := NotifyOffline, "Working offline, changes will sync later"
	if online {
		kind, message = NotifyOnline, "Back online"
	}

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, entry := range m.sessions {
		sessions = append(sessions, entry.session)
		if online && entry.session.Stale() {
			entry.loadedAt = m.now()
		}
	}
	closed := m.closed
	if online && !closed {
		m.drains.Add(len(sessions))
	}
	m.mu.Unlock()

	for _, s := range sessions {
		userID := s.UserID()
		if userID == "" {
			if online && !closed {
				m.drains.Done()
			}
			continue
		}
		s.notify(Notification{UserID: userID, Kind: kind, Message: message})
		if !online || closed {
			continue
		}
		go func(s *Session) {
			defer m.drains.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.drainTimeout)
			defer cancel()
			if s.Stale() {
				if err := s.Reload(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
					m.logger.Printf("reload for %s: %v", userID, err)
				}
			}
			if _, err := s.DrainQueue(ctx); err != nil && !errors.Is(err, ErrNoUser) {
				m.logger.Printf("drain for %s: %v", userID, err)
			}
		}(s)
	}
}

// Close closes every session after in-flight drains finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*managed)
	m.mu.Unlock()

	m.drains.Wait()
	var errs error
	for _, entry := range sessions {
		sessionsGauge.Dec()
		errs = errors.Join(errs, entry.session.Close())
	}
	return errs
}
