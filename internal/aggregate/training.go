package aggregate

import (
	"time"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/units"
)

// MonthlyTrainingHours returns training hours per calendar month of year, January first.
// Workouts contribute sets × minutes-per-set; runs contribute their declared duration.
func (e *Engine) MonthlyTrainingHours(workouts []domain.WorkoutLogEntry, joggings []domain.JoggingLogEntry, year int) [12]float64 {
	return guard(e, "monthly_training_hours", func() [12]float64 {
		var hours [12]float64
		for _, w := range workouts {
			local := w.CompletedAt.In(e.loc)
			if local.Year() != year {
				continue
			}
			hours[local.Month()-1] += float64(w.Sets) * e.minutesPerSet / 60
		}
		for _, j := range joggings {
			local := j.CompletedAt.In(e.loc)
			if local.Year() != year {
				continue
			}
			hours[local.Month()-1] += j.Elapsed().Hours()
		}
		return hours
	})
}

// TrainingTrend compares month with the month before it in the same series.
func TrainingTrend(hours [12]float64, month time.Month) float64 {
	if month < time.January || month > time.December {
		return 0
	}
	var previous float64
	if month > time.January {
		previous = hours[month-2]
	}
	return PercentageChange(hours[month-1], previous)
}

// TrainingTotals summarises one day of training.
type TrainingTotals struct {
	Sets             int     `json:"sets"`
	Reps             int     `json:"reps"`
	Exercises        int     `json:"exercises"`
	VolumeKg         float64 `json:"volume_kg"`
	WorkoutMinutes   float64 `json:"workout_minutes"`
	JogDistanceKm    float64 `json:"jog_distance_km"`
	JogMinutes       float64 `json:"jog_minutes"`
	CaloriesBurned   int     `json:"calories_burned"`
	TotalMinutes     float64 `json:"total_minutes"`
	HasData          bool    `json:"has_data"`
	AveragePaceMinKm float64 `json:"average_pace_min_km,omitempty"`
}

// DailyTraining totals the workouts and runs completed within the day containing date.
func (e *Engine) DailyTraining(workouts []domain.WorkoutLogEntry, joggings []domain.JoggingLogEntry, date time.Time) TrainingTotals {
	return guard(e, "daily_training", func() TrainingTotals {
		start, end := e.DayWindow(date)
		var totals TrainingTotals
		exercises := make(map[string]struct{})
		for _, w := range workouts {
			if !inWindow(w.CompletedAt, start, end) {
				continue
			}
			totals.HasData = true
			totals.Sets += w.Sets
			totals.Reps += w.Sets * w.Reps
			totals.WorkoutMinutes += float64(w.Sets) * e.minutesPerSet
			exercises[w.ExerciseID] = struct{}{}
			if w.Weight != nil {
				totals.VolumeKg += float64(w.Sets*w.Reps) * weightKg(*w.Weight, w.Unit)
			}
		}
		for _, j := range joggings {
			if !inWindow(j.CompletedAt, start, end) {
				continue
			}
			totals.HasData = true
			totals.JogDistanceKm += j.Distance
			totals.JogMinutes += j.Elapsed().Minutes()
			if j.Calories != nil {
				totals.CaloriesBurned += *j.Calories
			}
		}
		totals.Exercises = len(exercises)
		totals.TotalMinutes = totals.WorkoutMinutes + totals.JogMinutes
		if totals.JogDistanceKm > 0 {
			totals.AveragePaceMinKm = totals.JogMinutes / totals.JogDistanceKm
		}
		return totals
	})
}

func weightKg(weight float64, unit domain.WeightUnit) float64 {
	if !unit.Valid() {
		unit = domain.WeightKg
	}
	return units.ToGrams(weight, string(unit)) / 1000
}
