package livesync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/observability"
	"example.com/fittrack/internal/offline"
	"example.com/fittrack/internal/realtime"
)

var (
	// ErrNoUser is returned by writes and drains on a session with no signed-in user.
	ErrNoUser = errors.New("no user signed in")
	// ErrSuperseded is returned by SetUser when a later SetUser replaced its load.
	ErrSuperseded = errors.New("user switch superseded")
)

// Backend is the data service a session loads from and writes to.
type Backend interface {
	LoadAll(ctx context.Context, table domain.Table, userID string) ([]domain.Record, error)
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	Apply(ctx context.Context, m domain.Mutation) (events.RowChanged, error)
}

// Subscriber opens realtime channels.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string, table domain.Table, handler realtime.Handler) (*realtime.Channel, error)
}

// Connectivity reports whether the backend is reachable.
type Connectivity interface {
	Online() bool
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger overrides the session logger.
func WithLogger(logger *log.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithNotifier sets where notifications are sent.
func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithConnectivity sets the connectivity source consulted by Write.
func WithConnectivity(c Connectivity) SessionOption {
	return func(s *Session) {
		s.conn = c
	}
}

// WithClock overrides the notification clock.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// WriteResult describes where a write went.
type WriteResult struct {
	Queued bool
	Action offline.Action
	Change events.RowChanged
}

// Session mirrors one user's data and keeps it current.
type Session struct {
	backend  Backend
	subs     Subscriber
	queue    *offline.Queue
	conn     Connectivity
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
	mirror   *Mirror

	mu         sync.Mutex
	userID     string
	generation uint64
	loading    bool
	stale      bool
	buffer     []events.RowChanged
	channels   []*realtime.Channel
}

// NewSession constructs a session with no user.
func NewSession(backend Backend, subs Subscriber, queue *offline.Queue, opts ...SessionOption) *Session {
	s := &Session{
		backend:  backend,
		subs:     subs,
		queue:    queue,
		conn:     alwaysOnline{},
		notifier: NotifierFunc(func(Notification) {}),
		logger:   log.New(log.Writer(), "[livesync] ", log.LstdFlags|log.Lshortfile),
		now:      time.Now,
		mirror:   NewMirror(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mirror returns the session's local data.
func (s *Session) Mirror() *Mirror { return s.mirror }

// UserID returns the signed-in user, or "".
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// IsLoading reports whether a bulk load is in progress.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// SetUser switches the session to userID. Channels of the previous user are closed and
// the mirror is cleared. For a non-empty user one channel per table is opened, every table
// is loaded, and changes that arrived during the load are replayed over the snapshot.
// If SetUser is called again before the load finishes, the earlier load is discarded.
// Errors from subscribing or loading are joined and returned; whatever succeeded stays live.
func (s *Session) SetUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	stale := s.channels
	s.channels = nil
	s.userID = userID
	s.loading = userID != ""
	s.stale = false
	s.buffer = nil
	s.mirror.Reset()
	s.mu.Unlock()

	closeChannels(stale, s.logger)
	if userID == "" {
		return nil
	}

	var errs error
	var opened []*realtime.Channel
	for _, table := range domain.AllTables() {
		ch, err := s.subs.Subscribe(ctx, userID, table, s.handler(gen))
		if err != nil {
			s.logger.Printf("subscribe %s for %s: %v", table, userID, err)
			errs = errors.Join(errs, err)
			continue
		}
		opened = append(opened, ch)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		closeChannels(opened, s.logger)
		return errors.Join(errs, ErrSuperseded)
	}
	s.channels = opened
	s.mu.Unlock()

	snapshot, loadErr := s.load(ctx, userID)
	errs = errors.Join(errs, loadErr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return errors.Join(errs, ErrSuperseded)
	}
	if err := s.mirror.Install(snapshot); err != nil {
		errs = errors.Join(errs, err)
	}
	replayed := 0
	for _, change := range s.buffer {
		if err := s.mirror.Apply(change); err != nil {
			s.logger.Printf("replay %s %s/%s: %v", change.Operation, change.Table, change.RowID, err)
			continue
		}
		replayed++
	}
	s.buffer = nil
	s.loading = false
	s.stale = errs != nil
	if replayed > 0 {
		s.logger.Printf("replayed %d buffered changes for %s", replayed, userID)
	}
	return errs
}

// Stale reports whether the last load for the signed-in user failed in part, leaving the
// mirror or its channels incomplete.
func (s *Session) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Reload reruns SetUser for the signed-in user.
func (s *Session) Reload(ctx context.Context) error {
	userID := s.UserID()
	if userID == "" {
		return ErrNoUser
	}
	return s.SetUser(ctx, userID)
}

func (s *Session) load(ctx context.Context, userID string) (Snapshot, error) {
	return LoadSnapshot(ctx, s.backend, userID, s.logger)
}

// LoadSnapshot fetches every table and the profile of userID in parallel. Tables that
// fail to load are left out of the snapshot and their errors joined.
func LoadSnapshot(ctx context.Context, backend Backend, userID string, logger *log.Logger) (Snapshot, error) {
	if logger == nil {
		logger = log.Default()
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	snapshot := Snapshot{Tables: make(map[domain.Table][]domain.Record)}

	for _, table := range domain.AllTables() {
		if table == domain.TableProfiles {
			continue
		}
		wg.Add(1)
		go func(table domain.Table) {
			defer wg.Done()
			rows, err := backend.LoadAll(ctx, table, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Printf("load %s for %s: %v", table, userID, err)
				errs = errors.Join(errs, fmt.Errorf("load %s: %w", table, err))
				return
			}
			snapshot.Tables[table] = rows
		}(table)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		profile, err := backend.GetProfile(ctx, userID)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			logger.Printf("load profile for %s: %v", userID, err)
			errs = errors.Join(errs, fmt.Errorf("load %s: %w", domain.TableProfiles, err))
			return
		}
		snapshot.Profile = profile
	}()

	wg.Wait()
	return snapshot, errs
}

func (s *Session) handler(gen uint64) realtime.Handler {
	return realtime.HandlerFunc(func(_ context.Context, change events.RowChanged) error {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return nil
		}
		if s.loading {
			s.buffer = append(s.buffer, change)
			s.mu.Unlock()
			return nil
		}
		err := s.mirror.Apply(change)
		s.mu.Unlock()
		if err != nil {
			return err
		}

		observability.RecordChangeApplied(string(change.Table), s.now())
		s.notify(Notification{
			UserID:    change.UserID,
			Kind:      NotifyChange,
			Table:     change.Table,
			Operation: change.Operation,
			RowID:     change.RowID,
			Message:   changeMessage(change.Table, change.Operation),
		})
		return nil
	})
}

// Write validates m and sends it to the backend when online, or to the offline queue
// otherwise. An empty UserID is filled with the signed-in user; a different one is rejected.
// A write that fails because the backend cannot be reached is queued as well, and the
// connectivity source is switched offline when it supports that.
func (s *Session) Write(ctx context.Context, m domain.Mutation) (WriteResult, error) {
	userID := s.UserID()
	if userID == "" {
		return WriteResult{}, ErrNoUser
	}
	if m.UserID == "" {
		m.UserID = userID
	}
	if m.UserID != userID {
		return WriteResult{}, fmt.Errorf("%w: mutation is for another user", domain.ErrValidation)
	}

	m, _, err := m.Normalize()
	if err != nil {
		return WriteResult{}, err
	}
	if m.Table == domain.TableNutritionLogs {
		row, ok := s.mirror.Nutrition.Get(m.RowID)
		switch {
		case ok && m.Op == domain.OpInsert:
			return WriteResult{}, fmt.Errorf("%w: %s row %s already exists", domain.ErrValidation, m.Table, m.RowID)
		case ok && m.Op == domain.OpUpdate && row.Locked:
			return WriteResult{}, domain.ErrLocked
		}
	}

	if !s.conn.Online() {
		return s.enqueue(ctx, m)
	}

	change, err := s.apply(ctx, m)
	if err != nil {
		if ctx.Err() == nil && Unreachable(err) {
			s.logger.Printf("backend unreachable on %s %s/%s, queueing: %v", m.Op, m.Table, m.RowID, err)
			if setter, ok := s.conn.(interface{ Set(online bool) }); ok {
				setter.Set(false)
			}
			return s.enqueue(ctx, m)
		}
		return WriteResult{}, err
	}
	return WriteResult{Change: change}, nil
}

func (s *Session) enqueue(ctx context.Context, m domain.Mutation) (WriteResult, error) {
	action, err := s.queue.Enqueue(ctx, m)
	if err != nil {
		return WriteResult{}, err
	}
	s.notify(Notification{
		UserID:    m.UserID,
		Kind:      NotifyQueued,
		Table:     m.Table,
		Operation: m.Op,
		RowID:     m.RowID,
		Message:   fmt.Sprintf("%s saved offline", m.Table.Label()),
	})
	return WriteResult{Queued: true, Action: action}, nil
}

func (s *Session) apply(ctx context.Context, m domain.Mutation) (events.RowChanged, error) {
	change, err := s.backend.Apply(ctx, m)
	if err != nil {
		return events.RowChanged{}, err
	}

	// The channel delivers the same change later; applying it now is idempotent.
	s.mu.Lock()
	if s.userID == change.UserID && !s.loading {
		if err := s.mirror.Apply(change); err != nil {
			s.logger.Printf("mirror %s %s/%s: %v", change.Operation, change.Table, change.RowID, err)
		}
	}
	s.mu.Unlock()
	return change, nil
}

// DrainQueue replays the signed-in user's offline actions against the backend.
func (s *Session) DrainQueue(ctx context.Context) (offline.DrainResult, error) {
	userID := s.UserID()
	if userID == "" {
		return offline.DrainResult{}, ErrNoUser
	}

	result, err := s.queue.Drain(ctx, userID, offline.ExecutorFunc(func(ctx context.Context, m domain.Mutation) error {
		_, err := s.apply(ctx, m)
		return err
	}))
	if err != nil {
		return result, err
	}
	if result.Attempts > 0 {
		s.notify(Notification{
			UserID:  userID,
			Kind:    NotifyDrained,
			Message: fmt.Sprintf("synced %d offline changes, %d failed", result.Applied, len(result.Failed)),
		})
	}
	return result, nil
}

// Close closes every channel and detaches the user.
func (s *Session) Close() error {
	s.mu.Lock()
	s.generation++
	channels := s.channels
	s.channels = nil
	s.userID = ""
	s.loading = false
	s.stale = false
	s.buffer = nil
	s.mu.Unlock()

	return closeChannels(channels, s.logger)
}

func (s *Session) notify(n Notification) {
	if n.At.IsZero() {
		n.At = s.now().UTC()
	}
	s.notifier.Notify(n)
}

func closeChannels(channels []*realtime.Channel, logger *log.Logger) error {
	var errs error
	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			logger.Printf("close %s channel: %v", ch.Table(), err)
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
