package aggregate

import (
	"math"
	"sort"
	"time"

	"example.com/fittrack/internal/domain"
)

// ChallengeStatus is the display state of a weight challenge.
type ChallengeStatus struct {
	DaysRemaining   int       `json:"days_remaining"`
	ProgressPercent float64   `json:"progress_percent"`
	EndDate         time.Time `json:"end_date"`
	CurrentWeight   float64   `json:"current_weight"`
}

// ChallengeProgress reports days left until the challenge ends and how much of the
// planned loss has been achieved, clamped to [0, 100]. A goal at or above the start
// weight counts as complete.
func (e *Engine) ChallengeProgress(c domain.Challenge, currentWeight float64, now time.Time) ChallengeStatus {
	return guard(e, "challenge_progress", func() ChallengeStatus {
		end := c.EndDate()
		days := math.Ceil(end.Sub(now).Hours() / 24)
		if days < 0 || math.IsNaN(days) {
			days = 0
		}

		var progress float64
		if c.StartWeight <= c.GoalWeight {
			progress = 100
		} else {
			progress = clampPercent((c.StartWeight - currentWeight) / (c.StartWeight - c.GoalWeight) * 100)
		}
		return ChallengeStatus{
			DaysRemaining:   int(days),
			ProgressPercent: progress,
			EndDate:         end,
			CurrentWeight:   currentWeight,
		}
	})
}

// CurrentWeight returns the most recent logged weight, falling back to the profile weight.
func (e *Engine) CurrentWeight(weights []domain.WeightLogEntry, profile *domain.Profile) (float64, bool) {
	type result struct {
		weight float64
		ok     bool
	}
	r := guard(e, "current_weight", func() result {
		var latest *domain.WeightLogEntry
		for i := range weights {
			if latest == nil || weights[i].MeasuredAt.After(latest.MeasuredAt) {
				latest = &weights[i]
			}
		}
		if latest != nil {
			return result{weight: latest.Weight, ok: true}
		}
		if profile != nil && profile.Weight != nil {
			return result{weight: *profile.Weight, ok: true}
		}
		return result{}
	})
	return r.weight, r.ok
}

// WeightTrend compares the first and latest logged weights.
type WeightTrend struct {
	Start         float64 `json:"start"`
	Current       float64 `json:"current"`
	Delta         float64 `json:"delta"`
	ChangePercent float64 `json:"change_percent"`
	Samples       int     `json:"samples"`
}

// WeightChange returns the trend across all weight logs.
func (e *Engine) WeightChange(weights []domain.WeightLogEntry) WeightTrend {
	return guard(e, "weight_change", func() WeightTrend {
		if len(weights) == 0 {
			return WeightTrend{}
		}
		sorted := make([]domain.WeightLogEntry, len(weights))
		copy(sorted, weights)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].MeasuredAt.Before(sorted[j].MeasuredAt)
		})
		first, last := sorted[0].Weight, sorted[len(sorted)-1].Weight
		return WeightTrend{
			Start:         first,
			Current:       last,
			Delta:         last - first,
			ChangePercent: PercentageChange(last, first),
			Samples:       len(sorted),
		}
	})
}
