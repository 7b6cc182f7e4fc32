package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChallengeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	key := ChallengeKey("user-1")

	_, err := Get(ctx, s, key)
	require.ErrorIs(t, err, ErrNotFound)

	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	want := domain.Challenge{GoalWeight: 80, StartWeight: 90, DurationMonths: 3, StartDate: start}
	require.NoError(t, Put(ctx, s, key, want))

	got, err := Get(ctx, s, key)
	require.NoError(t, err)
	require.Equal(t, want.GoalWeight, got.GoalWeight)
	require.True(t, want.StartDate.Equal(got.StartDate))

	require.NoError(t, Remove(ctx, s, key))
	_, err = Get(ctx, s, key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutRejectsInvalidValue(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := Put(ctx, s, ChallengeKey("user-1"), domain.Challenge{GoalWeight: 80})
	require.ErrorIs(t, err, domain.ErrValidation)

	keys, err := s.Keys(ctx, "challenge:")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestGetReportsMalformedValues(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	key := ChallengeKey("user-1")

	cases := map[string]string{
		"not json":      `{{{`,
		"unknown field": `{"goal_weight":80,"start_weight":90,"duration_months":3,"start_date":"2025-01-01T00:00:00Z","extra":1}`,
		"invalid value": `{"goal_weight":-1,"start_weight":90,"duration_months":3,"start_date":"2025-01-01T00:00:00Z"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.putRaw(ctx, key.Name(), []byte(raw)))
			_, err := Get(ctx, s, key)
			require.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestUpdateAppliesInTransaction(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	key := NewKey[[]int]("numbers", nil)

	for i := 1; i <= 3; i++ {
		require.NoError(t, Update(ctx, s, key, func(cur []int) ([]int, error) {
			return append(cur, i), nil
		}))
	}
	got, err := Get(ctx, s, key)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, got)

	boom := errors.New("boom")
	err = Update(ctx, s, key, func(cur []int) ([]int, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	got, err = Get(ctx, s, key)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestValuesPersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "device.db")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, Put(ctx, s, LastSeenVersionKey("u"), "2.4.0"))
	require.NoError(t, Put(ctx, s, ConsentKey(), Consent{Analytics: true, DecidedAt: time.Now().UTC()}))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := Get(ctx, s, LastSeenVersionKey("u"))
	require.NoError(t, err)
	require.Equal(t, "2.4.0", v)

	c, err := Get(ctx, s, ConsentKey())
	require.NoError(t, err)
	require.True(t, c.Analytics)
}
