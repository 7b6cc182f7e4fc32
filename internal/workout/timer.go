// Package workout runs the in-session timer for a jogging workout.
package workout

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"example.com/fittrack/internal/domain"
)

var (
	ErrAlreadyStarted = errors.New("timer already started")
	ErrNotStarted     = errors.New("timer not started")
	ErrNotRunning     = errors.New("timer is not running")
	ErrNotPaused      = errors.New("timer is not paused")
	ErrStopped        = errors.New("timer stopped")
)

// DefaultTickInterval is how often elapsed time is published while running.
const DefaultTickInterval = time.Second

// Tick reports the elapsed running time.
type Tick struct {
	Elapsed time.Duration
	At      time.Time
}

// Option configures a JogTimer.
type Option func(*JogTimer)

// WithClock overrides the time source used for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(t *JogTimer) {
		t.now = now
	}
}

// WithTickInterval overrides DefaultTickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(t *JogTimer) {
		if d > 0 {
			t.interval = d
		}
	}
}

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdStop
	cmdElapsed
)

type command struct {
	kind  commandKind
	reply chan reply
}

type reply struct {
	elapsed time.Duration
	paused  bool
	err     error
}

// JogTimer measures running time, excluding pauses. All state lives in the goroutine
// started by Start; the other methods talk to it over a channel and are safe to call
// from any goroutine.
type JogTimer struct {
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	started   bool
	cmds      chan command
	ticks     chan Tick
	done      chan struct{}
	final     time.Duration
	stoppedAt time.Time
}

// NewJogTimer returns an unstarted timer.
func NewJogTimer(opts ...Option) *JogTimer {
	t := &JogTimer{
		interval: DefaultTickInterval,
		now:      time.Now,
		cmds:     make(chan command),
		ticks:    make(chan Tick, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ticks delivers the latest elapsed time while running. A slow reader sees only the most
// recent tick. The channel is closed when the timer stops.
func (t *JogTimer) Ticks() <-chan Tick { return t.ticks }

// Done is closed once the timer has stopped, either through Stop or ctx.
func (t *JogTimer) Done() <-chan struct{} { return t.done }

// Start begins timing. Cancelling ctx stops the timer as Stop would.
func (t *JogTimer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true
	go t.loop(ctx, t.now())
	return nil
}

// Pause suspends timing.
func (t *JogTimer) Pause() error {
	_, err := t.send(cmdPause)
	return err
}

// Resume continues a paused timer.
func (t *JogTimer) Resume() error {
	_, err := t.send(cmdResume)
	return err
}

// Elapsed returns running time so far and whether the timer is paused.
func (t *JogTimer) Elapsed() (time.Duration, bool, error) {
	r, err := t.send(cmdElapsed)
	return r.elapsed, r.paused, err
}

// Stop ends timing and returns the total running time. Stopping a stopped timer returns
// the same total.
func (t *JogTimer) Stop() (time.Duration, error) {
	r, err := t.send(cmdStop)
	if errors.Is(err, ErrStopped) {
		return t.total(), nil
	}
	return r.elapsed, err
}

// Entry builds a jogging log entry from the stopped timer. Duration is in whole seconds.
func (t *JogTimer) Entry(distanceKm float64) (domain.JoggingLogEntry, error) {
	select {
	case <-t.done:
	default:
		return domain.JoggingLogEntry{}, ErrNotRunning
	}
	t.mu.Lock()
	total, at := t.final, t.stoppedAt
	t.mu.Unlock()

	return domain.JoggingLogEntry{
		Distance:     distanceKm,
		Duration:     math.Round(total.Seconds()),
		DurationUnit: domain.DurationSeconds,
		CompletedAt:  at.UTC(),
	}, nil
}

func (t *JogTimer) total() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.final
}

func (t *JogTimer) send(kind commandKind) (reply, error) {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return reply{}, ErrNotStarted
	}

	cmd := command{kind: kind, reply: make(chan reply, 1)}
	select {
	case t.cmds <- cmd:
	case <-t.done:
		return reply{elapsed: t.total()}, ErrStopped
	}
	r := <-cmd.reply
	return r, r.err
}

func (t *JogTimer) loop(ctx context.Context, startedAt time.Time) {
	var (
		accumulated time.Duration
		since       = startedAt
		paused      bool
	)
	elapsed := func() time.Duration {
		if paused {
			return accumulated
		}
		return accumulated + t.now().Sub(since)
	}
	finish := func() time.Duration {
		total := elapsed()
		t.mu.Lock()
		t.final = total
		t.stoppedAt = t.now()
		t.mu.Unlock()
		close(t.ticks)
		close(t.done)
		return total
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finish()
			return
		case <-ticker.C:
			if !paused {
				t.publish(Tick{Elapsed: elapsed(), At: t.now()})
			}
		case cmd := <-t.cmds:
			switch cmd.kind {
			case cmdPause:
				if paused {
					cmd.reply <- reply{elapsed: accumulated, paused: true, err: ErrNotRunning}
					continue
				}
				accumulated = elapsed()
				paused = true
				cmd.reply <- reply{elapsed: accumulated, paused: true}
			case cmdResume:
				if !paused {
					cmd.reply <- reply{elapsed: elapsed(), err: ErrNotPaused}
					continue
				}
				since = t.now()
				paused = false
				cmd.reply <- reply{elapsed: accumulated}
			case cmdElapsed:
				cmd.reply <- reply{elapsed: elapsed(), paused: paused}
			case cmdStop:
				cmd.reply <- reply{elapsed: finish()}
				return
			}
		}
	}
}

func (t *JogTimer) publish(tick Tick) {
	select {
	case t.ticks <- tick:
		return
	default:
	}
	// Drop the stale tick so the reader sees the newest one.
	select {
	case <-t.ticks:
	default:
	}
	select {
	case t.ticks <- tick:
	default:
	}
}
