package aggregate

import (
	"time"

	"example.com/fittrack/internal/domain"
)

// NutritionTotals summarises the nutrition entries of one day. Hydration is in
// milliliters; macros, vitamins, fiber and sugar are in grams.
type NutritionTotals struct {
	Calories  int     `json:"calories"`
	Protein   float64 `json:"protein"`
	Carbs     float64 `json:"carbs"`
	Fats      float64 `json:"fats"`
	Hydration float64 `json:"hydration_ml"`
	Vitamins  float64 `json:"vitamins_g"`
	Fiber     float64 `json:"fiber_g"`
	Sugar     float64 `json:"sugar_g"`
	Entries   int     `json:"entries"`
	HasData   bool    `json:"has_data"`
}

// DailyNutrition totals the entries completed within the day containing date.
func (e *Engine) DailyNutrition(entries []domain.NutritionLogEntry, date time.Time) NutritionTotals {
	return guard(e, "daily_nutrition", func() NutritionTotals {
		start, end := e.DayWindow(date)
		var totals NutritionTotals
		for _, entry := range entries {
			if !inWindow(entry.CompletedAt, start, end) {
				continue
			}
			e.accumulate(&totals, entry)
		}
		return totals
	})
}

func (e *Engine) accumulate(totals *NutritionTotals, entry domain.NutritionLogEntry) {
	totals.Entries++
	totals.HasData = true
	totals.Calories += entry.Calories
	totals.Protein += deref(entry.Protein)
	totals.Carbs += deref(entry.Carbs)
	totals.Fats += deref(entry.Fats)

	extras, err := entry.Extras()
	if err != nil {
		e.logger.Printf("warning: nutrition entry %s has unreadable notes, counting macros only: %v", entry.ID, err)
		recordUnreadableNotes(string(domain.TableNutritionLogs))
		return
	}
	totals.Hydration += extras.Hydration()
	totals.Vitamins += extras.Vitamins()
	totals.Fiber += extras.FiberGrams()
	totals.Sugar += extras.SugarGrams()
}

// DayComparison contrasts a day with the day before it.
type DayComparison struct {
	Today           NutritionTotals `json:"today"`
	Yesterday       NutritionTotals `json:"yesterday"`
	CaloriesChange  float64         `json:"calories_change_pct"`
	ProteinChange   float64         `json:"protein_change_pct"`
	CarbsChange     float64         `json:"carbs_change_pct"`
	FatsChange      float64         `json:"fats_change_pct"`
	HydrationChange float64         `json:"hydration_change_pct"`
}

// CompareDays returns totals for date and the previous day with percentage changes.
func (e *Engine) CompareDays(entries []domain.NutritionLogEntry, date time.Time) DayComparison {
	return guard(e, "compare_days", func() DayComparison {
		start, _ := e.DayWindow(date)
		today := e.DailyNutrition(entries, start)
		yesterday := e.DailyNutrition(entries, start.AddDate(0, 0, -1))
		return DayComparison{
			Today:           today,
			Yesterday:       yesterday,
			CaloriesChange:  PercentageChange(float64(today.Calories), float64(yesterday.Calories)),
			ProteinChange:   PercentageChange(today.Protein, yesterday.Protein),
			CarbsChange:     PercentageChange(today.Carbs, yesterday.Carbs),
			FatsChange:      PercentageChange(today.Fats, yesterday.Fats),
			HydrationChange: PercentageChange(today.Hydration, yesterday.Hydration),
		}
	})
}

// CalendarDay holds the per-day markers shown on the monthly calendar.
type CalendarDay struct {
	Date        time.Time       `json:"date"`
	Nutrition   NutritionTotals `json:"nutrition"`
	WorkoutSets int             `json:"workout_sets"`
	Jogs        int             `json:"jogs"`
	HasData     bool            `json:"has_data"`
}

// Calendar returns one CalendarDay per day of the given month, in order.
func (e *Engine) Calendar(nutrition []domain.NutritionLogEntry, workouts []domain.WorkoutLogEntry, joggings []domain.JoggingLogEntry, year int, month time.Month) []CalendarDay {
	return guard(e, "calendar", func() []CalendarDay {
		first := time.Date(year, month, 1, 0, 0, 0, 0, e.loc)
		daysInMonth := first.AddDate(0, 1, -1).Day()
		days := make([]CalendarDay, daysInMonth)
		for i := range days {
			days[i].Date = time.Date(year, month, i+1, 0, 0, 0, 0, e.loc)
		}

		index := func(t time.Time) (int, bool) {
			local := t.In(e.loc)
			if local.Year() != year || local.Month() != month {
				return 0, false
			}
			return local.Day() - 1, true
		}

		for _, entry := range nutrition {
			if i, ok := index(entry.CompletedAt); ok {
				e.accumulate(&days[i].Nutrition, entry)
				days[i].HasData = true
			}
		}
		for _, w := range workouts {
			if i, ok := index(w.CompletedAt); ok {
				days[i].WorkoutSets += w.Sets
				days[i].HasData = true
			}
		}
		for _, j := range joggings {
			if i, ok := index(j.CompletedAt); ok {
				days[i].Jogs++
				days[i].HasData = true
			}
		}
		return days
	})
}

// MonthlyNutrition returns the nutrition totals of each day of the month, indexed by day-1.
func (e *Engine) MonthlyNutrition(entries []domain.NutritionLogEntry, year int, month time.Month) []NutritionTotals {
	days := e.Calendar(entries, nil, nil, year, month)
	totals := make([]NutritionTotals, len(days))
	for i, d := range days {
		totals[i] = d.Nutrition
	}
	return totals
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
