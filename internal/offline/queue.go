// Package offline holds writes made while the backend is unreachable and replays them
// once connectivity returns.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/localstore"
)

// Action is one queued mutation.
type Action struct {
	ID       uuid.UUID       `json:"id"`
	Mutation domain.Mutation `json:"mutation"`
	QueuedAt time.Time       `json:"queued_at"`
}

// Executor applies a mutation against the backend.
type Executor interface {
	Apply(ctx context.Context, m domain.Mutation) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, m domain.Mutation) error

func (f ExecutorFunc) Apply(ctx context.Context, m domain.Mutation) error {
	return f(ctx, m)
}

const queueKeyPrefix = "offline_queue:"

// QueueKey is the local store key holding a user's pending actions.
func QueueKey(userID string) localstore.Key[[]Action] {
	return localstore.NewKey(queueKeyPrefix+userID, func(actions []Action) error {
		for _, a := range actions {
			if a.ID == uuid.Nil {
				return errors.New("action without id")
			}
			if err := a.Mutation.Validate(); err != nil {
				return fmt.Errorf("action %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// Failure records an action the backend rejected during a drain.
type Failure struct {
	Action Action
	Err    error
}

// DrainResult summarises one drain pass.
type DrainResult struct {
	Applied  int
	Failed   []Failure
	Skipped  bool
	Attempts int
}

// Err joins every failure, or returns nil when all actions applied.
func (r DrainResult) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("action %s (%s %s): %w", f.Action.ID, f.Action.Mutation.Op, f.Action.Mutation.Table, f.Err))
	}
	return errors.Join(errs...)
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger overrides the queue logger.
func WithLogger(logger *log.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithClock overrides time.Now for queued timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// Queue persists actions per user in the local store.
type Queue struct {
	store  *localstore.Store
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	draining map[string]bool
}

// NewQueue constructs a queue on top of store. The backlog gauge starts from whatever the
// store already holds.
func NewQueue(store *localstore.Store, opts ...Option) *Queue {
	q := &Queue{
		store:    store,
		logger:   log.New(log.Writer(), "[offline] ", log.LstdFlags|log.Lshortfile),
		now:      time.Now,
		draining: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.refreshBacklog(context.Background())
	return q
}

// Enqueue validates m and appends it to the owner's queue.
func (q *Queue) Enqueue(ctx context.Context, m domain.Mutation) (Action, error) {
	normalized, _, err := m.Normalize()
	if err != nil {
		return Action{}, err
	}
	action := Action{ID: uuid.New(), Mutation: normalized, QueuedAt: q.now().UTC()}

	err = localstore.Update(ctx, q.store, QueueKey(normalized.UserID), func(actions []Action) ([]Action, error) {
		return append(actions, action), nil
	})
	if err != nil {
		return Action{}, fmt.Errorf("enqueue: %w", err)
	}
	recordQueued(normalized.Table)
	q.refreshBacklog(ctx)
	return action, nil
}

// Snapshot returns the user's pending actions in append order.
func (q *Queue) Snapshot(ctx context.Context, userID string) ([]Action, error) {
	actions, err := localstore.Get(ctx, q.store, QueueKey(userID))
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, nil
	}
	return actions, err
}

// Len returns the number of pending actions.
func (q *Queue) Len(ctx context.Context, userID string) (int, error) {
	actions, err := q.Snapshot(ctx, userID)
	return len(actions), err
}

// Pending counts the actions queued for every user in the store.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	keys, err := q.store.Keys(ctx, queueKeyPrefix)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, key := range keys {
		n, err := q.Len(ctx, strings.TrimPrefix(key, queueKeyPrefix))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (q *Queue) refreshBacklog(ctx context.Context) {
	total, err := q.Pending(ctx)
	if err != nil {
		q.logger.Printf("count pending actions: %v", err)
		return
	}
	backlogGauge.Set(float64(total))
}

// Drain applies the user's pending actions in order, one Apply per action.
//
// A rejected action is logged and dropped; it is not retried. Once the pass finishes the
// attempted actions are removed from the queue whatever their outcome, while actions
// enqueued during the pass remain. A Drain that starts while another is running for the
// same user returns immediately with Skipped set.
func (q *Queue) Drain(ctx context.Context, userID string, exec Executor) (DrainResult, error) {
	if !q.begin(userID) {
		return DrainResult{Skipped: true}, nil
	}
	defer q.end(userID)

	batch, err := q.Snapshot(ctx, userID)
	if err != nil {
		return DrainResult{}, fmt.Errorf("load queue: %w", err)
	}

	var result DrainResult
	attempted := make(map[uuid.UUID]struct{}, len(batch))
	for _, action := range batch {
		if ctx.Err() != nil {
			break
		}
		attempted[action.ID] = struct{}{}
		result.Attempts++

		if err := exec.Apply(ctx, action.Mutation); err != nil {
			q.logger.Printf("offline action %s (%s %s/%s) failed: %v", action.ID, action.Mutation.Op, action.Mutation.Table, action.Mutation.RowID, err)
			recordFailed(action.Mutation.Table)
			result.Failed = append(result.Failed, Failure{Action: action, Err: err})
			continue
		}
		recordApplied(action.Mutation.Table)
		result.Applied++
	}

	if len(attempted) > 0 {
		// Removal must outlive a cancelled drain context, otherwise applied actions replay.
		removeCtx := context.WithoutCancel(ctx)
		err = localstore.Update(removeCtx, q.store, QueueKey(userID), func(actions []Action) ([]Action, error) {
			kept := actions[:0]
			for _, a := range actions {
				if _, done := attempted[a.ID]; !done {
					kept = append(kept, a)
				}
			}
			return kept, nil
		})
		if err != nil {
			return result, fmt.Errorf("remove drained actions: %w", err)
		}
		q.refreshBacklog(removeCtx)
	}

	if len(batch) > 0 {
		q.logger.Printf("drained offline queue for %s: applied=%d failed=%d", userID, result.Applied, len(result.Failed))
	}
	return result, nil
}

// Draining reports whether a drain is running for the user.
func (q *Queue) Draining(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining[userID]
}

func (q *Queue) begin(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.draining[userID] {
		return false
	}
	q.draining[userID] = true
	return true
}

func (q *Queue) end(userID string) {
	q.mu.Lock()
	delete(q.draining, userID)
	q.mu.Unlock()
}
