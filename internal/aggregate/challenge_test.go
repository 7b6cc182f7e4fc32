package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
)

func TestChallengeProgress(t *testing.T) {
	e, _ := newTestEngine(t)
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, berlin)
	c := domain.Challenge{GoalWeight: 80, StartWeight: 90, DurationMonths: 3, StartDate: start}

	status := e.ChallengeProgress(c, 85, start.AddDate(0, 0, 10).Add(12*time.Hour))
	require.InDelta(t, 50.0, status.ProgressPercent, 1e-9)
	// 2025-04-01 minus 2025-01-11 12:00 is 79.5 days, rounded up.
	require.Equal(t, 80, status.DaysRemaining)
	require.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, berlin), status.EndDate)
}

func TestChallengeProgressClamps(t *testing.T) {
	e, _ := newTestEngine(t)
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, berlin)
	c := domain.Challenge{GoalWeight: 80, StartWeight: 90, DurationMonths: 1, StartDate: start}

	for _, current := range []float64{60, 75, 80, 90, 95, 200} {
		status := e.ChallengeProgress(c, current, start)
		require.GreaterOrEqual(t, status.ProgressPercent, 0.0)
		require.LessOrEqual(t, status.ProgressPercent, 100.0)
	}
	require.Equal(t, 100.0, e.ChallengeProgress(c, 70, start).ProgressPercent)
	require.Equal(t, 0.0, e.ChallengeProgress(c, 95, start).ProgressPercent)

	expired := e.ChallengeProgress(c, 85, start.AddDate(1, 0, 0))
	require.Zero(t, expired.DaysRemaining)
}

func TestChallengeProgressDegenerateGoal(t *testing.T) {
	e, _ := newTestEngine(t)
	c := domain.Challenge{GoalWeight: 90, StartWeight: 85, DurationMonths: 2, StartDate: time.Now()}
	require.Equal(t, 100.0, e.ChallengeProgress(c, 86, time.Now()).ProgressPercent)

	c.GoalWeight = 85
	require.Equal(t, 100.0, e.ChallengeProgress(c, 86, time.Now()).ProgressPercent)
}

func TestCurrentWeight(t *testing.T) {
	e, _ := newTestEngine(t)
	now := time.Now()
	weights := []domain.WeightLogEntry{
		{ID: "old", Weight: 92, MeasuredAt: now.AddDate(0, 0, -7)},
		{ID: "new", Weight: 90.5, MeasuredAt: now},
		{ID: "mid", Weight: 91, MeasuredAt: now.AddDate(0, 0, -3)},
	}
	w, ok := e.CurrentWeight(weights, &domain.Profile{Weight: ptr(100.0)})
	require.True(t, ok)
	require.Equal(t, 90.5, w)

	w, ok = e.CurrentWeight(nil, &domain.Profile{Weight: ptr(100.0)})
	require.True(t, ok)
	require.Equal(t, 100.0, w)

	_, ok = e.CurrentWeight(nil, nil)
	require.False(t, ok)

	trend := e.WeightChange(weights)
	require.Equal(t, 92.0, trend.Start)
	require.Equal(t, 90.5, trend.Current)
	require.InDelta(t, -1.5, trend.Delta, 1e-9)
	require.Equal(t, 3, trend.Samples)
}

func TestChartShapes(t *testing.T) {
	e, _ := newTestEngine(t)
	donut := e.MacroDonut(NutritionTotals{Protein: 25, Carbs: 50, Fats: 0})
	require.Len(t, donut, 3)
	require.InDelta(t, 100.0/3, donut[0].Percent, 1e-9)
	require.InDelta(t, 200.0/3, donut[1].Percent, 1e-9)
	require.Zero(t, donut[2].Percent)

	empty := e.MacroDonut(NutritionTotals{})
	for _, s := range empty {
		require.Zero(t, s.Percent)
	}

	rows := e.TargetProgress(NutritionTotals{Calories: 3000, Hydration: 1250}, DefaultTargets())
	require.Equal(t, "calories", rows[0].Name)
	require.Equal(t, 150.0, rows[0].Percent)
	require.Equal(t, 100.0, rows[0].Bar)
	require.Equal(t, 50.0, rows[4].Percent)

	end := time.Date(2025, time.March, 16, 20, 0, 0, 0, berlin)
	week := e.WeeklyCalories([]domain.NutritionLogEntry{
		meal("sun", 700, end),
		meal("mon", 300, time.Date(2025, time.March, 10, 8, 0, 0, 0, berlin)),
		meal("too-old", 999, time.Date(2025, time.March, 9, 8, 0, 0, 0, berlin)),
	}, end)
	require.Len(t, week, 7)
	require.Equal(t, "Mon", week[0].Label)
	require.Equal(t, 300, week[0].Calories)
	require.Equal(t, "Sun", week[6].Label)
	require.Equal(t, 700, week[6].Calories)
}
