package aggregate

import (
	"time"

	"example.com/fittrack/internal/domain"
)

// Energy density of macronutrients in kcal per gram.
const (
	kcalPerGramProtein = 4.0
	kcalPerGramCarbs   = 4.0
	kcalPerGramFat     = 9.0
)

// Targets are the daily goals used for percent-of-target figures.
type Targets struct {
	Calories  int     `json:"calories"`
	Protein   float64 `json:"protein"`
	Carbs     float64 `json:"carbs"`
	Fats      float64 `json:"fats"`
	Hydration float64 `json:"hydration_ml"`
}

// DefaultTargets returns the targets shown before a user sets their own.
func DefaultTargets() Targets {
	return Targets{Calories: 2000, Protein: 150, Carbs: 250, Fats: 70, Hydration: 2500}
}

// DonutSlice is one macro segment of the daily donut chart.
type DonutSlice struct {
	Name     string  `json:"name"`
	Grams    float64 `json:"grams"`
	Calories float64 `json:"calories"`
	Percent  float64 `json:"percent"`
}

// MacroDonut splits the day's macro calories into protein, carbs and fats segments.
func (e *Engine) MacroDonut(totals NutritionTotals) []DonutSlice {
	return guard(e, "macro_donut", func() []DonutSlice {
		slices := []DonutSlice{
			{Name: "protein", Grams: totals.Protein, Calories: totals.Protein * kcalPerGramProtein},
			{Name: "carbs", Grams: totals.Carbs, Calories: totals.Carbs * kcalPerGramCarbs},
			{Name: "fats", Grams: totals.Fats, Calories: totals.Fats * kcalPerGramFat},
		}
		var sum float64
		for _, s := range slices {
			sum += s.Calories
		}
		if sum > 0 {
			for i := range slices {
				slices[i].Percent = slices[i].Calories / sum * 100
			}
		}
		return slices
	})
}

// TargetRow is one progress bar comparing a total with its target.
type TargetRow struct {
	Name    string  `json:"name"`
	Unit    string  `json:"unit"`
	Value   float64 `json:"value"`
	Target  float64 `json:"target"`
	Percent float64 `json:"percent"`
	Bar     float64 `json:"bar"`
}

// TargetProgress returns percent-of-target rows; Bar is the percentage clamped for rendering.
func (e *Engine) TargetProgress(totals NutritionTotals, targets Targets) []TargetRow {
	return guard(e, "target_progress", func() []TargetRow {
		rows := []TargetRow{
			{Name: "calories", Unit: "kcal", Value: float64(totals.Calories), Target: float64(targets.Calories)},
			{Name: "protein", Unit: "g", Value: totals.Protein, Target: targets.Protein},
			{Name: "carbs", Unit: "g", Value: totals.Carbs, Target: targets.Carbs},
			{Name: "fats", Unit: "g", Value: totals.Fats, Target: targets.Fats},
			{Name: "hydration", Unit: "ml", Value: totals.Hydration, Target: targets.Hydration},
		}
		for i := range rows {
			rows[i].Percent = PercentOfTarget(rows[i].Value, rows[i].Target)
			rows[i].Bar = clampPercent(rows[i].Percent)
		}
		return rows
	})
}

// CaloriePoint is one bar of the weekly calorie chart.
type CaloriePoint struct {
	Date     time.Time `json:"date"`
	Label    string    `json:"label"`
	Calories int       `json:"calories"`
}

// WeeklyCalories returns seven daily calorie totals ending with the day containing end, oldest first.
func (e *Engine) WeeklyCalories(entries []domain.NutritionLogEntry, end time.Time) []CaloriePoint {
	return guard(e, "weekly_calories", func() []CaloriePoint {
		last, _ := e.DayWindow(end)
		points := make([]CaloriePoint, 7)
		for i := range points {
			day := time.Date(last.Year(), last.Month(), last.Day()-6+i, 0, 0, 0, 0, e.loc)
			points[i] = CaloriePoint{
				Date:     day,
				Label:    day.Weekday().String()[:3],
				Calories: e.DailyNutrition(entries, day).Calories,
			}
		}
		return points
	})
}
