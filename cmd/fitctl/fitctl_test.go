package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/livesync"
	"example.com/fittrack/internal/localstore"
	"example.com/fittrack/internal/offline"
)

type memoryBackend struct {
	mu   sync.Mutex
	rows map[domain.Table][]domain.Record
}

func (b *memoryBackend) LoadAll(_ context.Context, table domain.Table, userID string) ([]domain.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Record
	for _, rec := range b.rows[table] {
		if rec.Owner() == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (b *memoryBackend) GetProfile(context.Context, string) (*domain.Profile, error) {
	return nil, nil
}

func (b *memoryBackend) Apply(_ context.Context, m domain.Mutation) (events.RowChanged, error) {
	m, rec, err := m.Normalize()
	if err != nil {
		return events.RowChanged{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[m.Table] = append(b.rows[m.Table], rec)
	return events.RowChanged{Table: m.Table, Operation: m.Op, RowID: m.RowID, UserID: m.UserID, Row: m.Row}, nil
}

func setup(t *testing.T) (*memoryBackend, string) {
	t.Helper()
	t.Setenv("FITTRACK_USER", "")
	t.Setenv("DEFAULT_TIMEZONE", "UTC")

	backend := &memoryBackend{rows: make(map[domain.Table][]domain.Record)}
	previous := openBackend
	openBackend = func(context.Context) (livesync.Backend, func(), error) {
		return backend, func() {}, nil
	}
	t.Cleanup(func() { openBackend = previous })
	return backend, filepath.Join(t.TempDir(), "device.db")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	storePath, userID, tzName, jsonOut = "", "", "", false
	dailyDate, trainingYear, challengeStart = "", 0, ""

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootHelp(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	require.Contains(t, out, "challenge")
}

func TestUserIsRequired(t *testing.T) {
	_, path := setup(t)
	_, err := run(t, "--store", path, "queue", "list")
	require.ErrorContains(t, err, "--user is required")
}

func TestDailyReport(t *testing.T) {
	backend, path := setup(t)
	protein := 30.0
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	backend.rows[domain.TableNutritionLogs] = []domain.Record{
		domain.NutritionLogEntry{ID: "n1", UserID: "u1", MealType: domain.MealType("lunch"), Calories: 600, Protein: &protein, FoodName: "rice", CompletedAt: day},
		domain.NutritionLogEntry{ID: "n2", UserID: "u1", Calories: 400, FoodName: "oats", CompletedAt: day.Add(-24 * time.Hour)},
		domain.NutritionLogEntry{ID: "n3", UserID: "other", Calories: 900, FoodName: "cake", CompletedAt: day},
	}

	out, err := run(t, "--store", path, "--user", "u1", "--tz", "UTC", "--json", "daily", "--date", "2026-03-10")
	require.NoError(t, err)

	var report dailyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, "2026-03-10", report.Date)
	require.Equal(t, 600, report.Nutrition.Today.Calories)
	require.Equal(t, 400, report.Nutrition.Yesterday.Calories)
	require.InDelta(t, 50.0, report.Nutrition.CaloriesChange, 0.01)
	require.InDelta(t, 30.0, report.Nutrition.Today.Protein, 0.01)
}

func TestChallengeLifecycle(t *testing.T) {
	backend, path := setup(t)
	backend.rows[domain.TableWeightLogs] = []domain.Record{
		domain.WeightLogEntry{ID: "w1", UserID: "u1", Weight: 85, MeasuredAt: time.Now().Add(-time.Hour)},
	}

	out, err := run(t, "--store", path, "--user", "u1", "challenge", "show")
	require.NoError(t, err)
	require.Contains(t, out, "No challenge set.")

	_, err = run(t, "--store", path, "--user", "u1", "challenge", "set", "--goal", "80", "--months", "3", "--start-weight", "90")
	require.NoError(t, err)

	out, err = run(t, "--store", path, "--user", "u1", "--json", "challenge", "show")
	require.NoError(t, err)
	var view challengeView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Equal(t, 3, view.Challenge.DurationMonths)
	require.NotNil(t, view.Status)
	require.InDelta(t, 50.0, view.Status.ProgressPercent, 0.01)

	_, err = run(t, "--store", path, "--user", "u1", "challenge", "clear")
	require.NoError(t, err)
	out, err = run(t, "--store", path, "--user", "u1", "challenge", "show")
	require.NoError(t, err)
	require.Contains(t, out, "No challenge set.")
}

func TestChallengeSetRejectsInvalidValues(t *testing.T) {
	_, path := setup(t)
	_, err := run(t, "--store", path, "--user", "u1", "challenge", "set", "--goal", "80", "--months", "0", "--start-weight", "90")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestQueueListAndDrain(t *testing.T) {
	backend, path := setup(t)

	store, err := localstore.New(path)
	require.NoError(t, err)
	_, err = offline.NewQueue(store).Enqueue(context.Background(), domain.Mutation{
		Table:  domain.TableWeightLogs,
		Op:     domain.OpInsert,
		UserID: "u1",
		RowID:  "w9",
		Row:    json.RawMessage(`{"weight": 84.5, "measured_at": "2026-03-01T08:00:00Z"}`),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := run(t, "--store", path, "--user", "u1", "queue", "list")
	require.NoError(t, err)
	require.Contains(t, out, "w9")
	require.Contains(t, out, "weight_logs")

	out, err = run(t, "--store", path, "--user", "u1", "queue", "drain")
	require.NoError(t, err)
	require.Contains(t, out, "Applied 1 of 1 actions.")
	require.Len(t, backend.rows[domain.TableWeightLogs], 1)

	out, err = run(t, "--store", path, "--user", "u1", "queue", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Queue is empty.")
}

func steppingClock(t *testing.T) {
	t.Helper()
	var mu sync.Mutex
	now := time.Date(2026, 4, 2, 6, 30, 0, 0, time.UTC)
	previous := jogClock
	jogClock = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
	t.Cleanup(func() { jogClock = previous })
}

func TestJogLogsRun(t *testing.T) {
	backend, path := setup(t)
	steppingClock(t)
	jogDistance = 0
	rootCmd.SetIn(strings.NewReader("p\nr\ns\n"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	out, err := run(t, "--store", path, "--user", "u1", "jog", "--distance", "5.2")
	require.NoError(t, err)
	require.Contains(t, out, "Logged run")

	require.Len(t, backend.rows[domain.TableJoggingLogs], 1)
	entry := backend.rows[domain.TableJoggingLogs][0].(domain.JoggingLogEntry)
	require.Equal(t, "u1", entry.UserID)
	require.Equal(t, domain.DurationSeconds, entry.DurationUnit)
	require.Positive(t, entry.Duration)
	require.InDelta(t, 5.2, entry.Distance, 0.001)
}

func TestJogQueuesWhenBackendUnreachable(t *testing.T) {
	_, path := setup(t)
	steppingClock(t)
	openBackend = func(context.Context) (livesync.Backend, func(), error) {
		return nil, nil, errors.New("connection refused")
	}
	jogDistance = 0
	rootCmd.SetIn(strings.NewReader("s\n"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	out, err := run(t, "--store", path, "--user", "u1", "jog", "--distance", "3")
	require.NoError(t, err)
	require.Contains(t, out, "queued as")

	out, err = run(t, "--store", path, "--user", "u1", "queue", "list")
	require.NoError(t, err)
	require.Contains(t, out, "jogging_logs")
}
