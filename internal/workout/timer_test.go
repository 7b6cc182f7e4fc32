package workout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)}
}

func TestTimerExcludesPauses(t *testing.T) {
	clock := newClock()
	timer := NewJogTimer(WithClock(clock.Now), WithTickInterval(time.Hour))

	_, err := timer.Stop()
	require.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, timer.Start(context.Background()))
	require.ErrorIs(t, timer.Start(context.Background()), ErrAlreadyStarted)

	clock.Advance(10 * time.Minute)
	require.NoError(t, timer.Pause())
	require.ErrorIs(t, timer.Pause(), ErrNotRunning)

	clock.Advance(5 * time.Minute)
	elapsed, paused, err := timer.Elapsed()
	require.NoError(t, err)
	require.True(t, paused)
	require.Equal(t, 10*time.Minute, elapsed)

	require.NoError(t, timer.Resume())
	require.ErrorIs(t, timer.Resume(), ErrNotPaused)
	clock.Advance(2*time.Minute + 30*time.Second)

	total, err := timer.Stop()
	require.NoError(t, err)
	require.Equal(t, 12*time.Minute+30*time.Second, total)

	again, err := timer.Stop()
	require.NoError(t, err)
	require.Equal(t, total, again)
	require.ErrorIs(t, timer.Pause(), ErrStopped)

	entry, err := timer.Entry(2.4)
	require.NoError(t, err)
	require.Equal(t, 750.0, entry.Duration)
	require.Equal(t, domain.DurationSeconds, entry.DurationUnit)
	require.Equal(t, 2.4, entry.Distance)
	require.Equal(t, clock.Now(), entry.CompletedAt)
	require.Equal(t, 12*time.Minute+30*time.Second, entry.Elapsed())
}

func TestTimerPublishesTicksWhileRunning(t *testing.T) {
	clock := newClock()
	timer := NewJogTimer(WithClock(clock.Now), WithTickInterval(5*time.Millisecond))
	require.NoError(t, timer.Start(context.Background()))

	clock.Advance(42 * time.Second)
	deadline := time.After(2 * time.Second)
	for seen := false; !seen; {
		select {
		case tick := <-timer.Ticks():
			seen = tick.Elapsed == 42*time.Second
		case <-deadline:
			t.Fatal("no tick with the advanced elapsed time")
		}
	}

	_, err := timer.Stop()
	require.NoError(t, err)
	for range timer.Ticks() {
	}
}

func TestTimerStopsWithContext(t *testing.T) {
	clock := newClock()
	timer := NewJogTimer(WithClock(clock.Now), WithTickInterval(time.Hour))

	_, err := timer.Entry(1)
	require.ErrorIs(t, err, ErrNotRunning)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, timer.Start(ctx))
	clock.Advance(90 * time.Second)
	cancel()

	select {
	case <-timer.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not stop")
	}
	total, err := timer.Stop()
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, total)

	entry, err := timer.Entry(0.3)
	require.NoError(t, err)
	require.NoError(t, domain.JoggingLogEntry{
		UserID: "u1", Distance: entry.Distance, Duration: entry.Duration,
		DurationUnit: entry.DurationUnit, CompletedAt: entry.CompletedAt,
	}.Validate())
}
