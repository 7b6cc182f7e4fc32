package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/aggregate"
)

var dailyDate string

type dailyReport struct {
	Date      string                   `json:"date"`
	Nutrition aggregate.DayComparison  `json:"nutrition"`
	Targets   []aggregate.TargetRow    `json:"targets"`
	Training  aggregate.TrainingTotals `json:"training"`
	Weight    aggregate.WeightTrend    `json:"weight_trend"`
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Show nutrition, training and weight for one day",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		date := time.Now().In(engine.Location())
		if dailyDate != "" {
			date, err = time.ParseInLocation(time.DateOnly, dailyDate, engine.Location())
			if err != nil {
				return fmt.Errorf("invalid --date (expected YYYY-MM-DD)")
			}
		}

		mirror, err := loadMirror(cmd)
		if err != nil {
			return err
		}
		comparison := engine.CompareDays(mirror.Nutrition.Snapshot(), date)
		start, _ := engine.DayWindow(date)
		report := dailyReport{
			Date:      start.Format(time.DateOnly),
			Nutrition: comparison,
			Targets:   engine.TargetProgress(comparison.Today, aggregate.DefaultTargets()),
			Training:  engine.DailyTraining(mirror.Workouts.Snapshot(), mirror.Joggings.Snapshot(), date),
			Weight:    engine.WeightChange(mirror.Weights.Snapshot()),
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), report)
		}

		out := cmd.OutOrStdout()
		today := report.Nutrition.Today
		fmt.Fprintf(out, "Day: %s\n", report.Date)
		fmt.Fprintf(out, "Calories: %d (%+.1f%% vs yesterday)\n", today.Calories, report.Nutrition.CaloriesChange)
		fmt.Fprintf(out, "Protein: %.1fg  Carbs: %.1fg  Fats: %.1fg  Water: %.0fml\n", today.Protein, today.Carbs, today.Fats, today.Hydration)
		for _, row := range report.Targets {
			fmt.Fprintf(out, "  %-10s %6.1f / %-6.0f %5.1f%%\n", row.Name, row.Value, row.Target, row.Percent)
		}
		fmt.Fprintf(out, "Training: %d sets, %d reps, %.1f km jogged, %.0f min total\n",
			report.Training.Sets, report.Training.Reps, report.Training.JogDistanceKm, report.Training.TotalMinutes)
		if report.Weight.Samples > 0 {
			fmt.Fprintf(out, "Weight: %.1f kg (%+.1f kg since first log)\n", report.Weight.Current, report.Weight.Delta)
		}
		return nil
	},
}

var trainingYear int

type trainingReport struct {
	Year        int       `json:"year"`
	Hours       []float64 `json:"hours"`
	Month       int       `json:"month"`
	MonthChange float64   `json:"month_change_pct"`
}

var trainingCmd = &cobra.Command{
	Use:   "training",
	Short: "Show training hours per month for a year",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		now := time.Now().In(engine.Location())
		year := trainingYear
		if year == 0 {
			year = now.Year()
		}
		mirror, err := loadMirror(cmd)
		if err != nil {
			return err
		}
		hours := engine.MonthlyTrainingHours(mirror.Workouts.Snapshot(), mirror.Joggings.Snapshot(), year)
		month := time.December
		if year == now.Year() {
			month = now.Month()
		}
		report := trainingReport{Year: year, Hours: hours[:], Month: int(month), MonthChange: aggregate.TrainingTrend(hours, month)}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), report)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Training hours %d\n", year)
		for i, h := range hours {
			fmt.Fprintf(out, "  %s %6.2f\n", time.Month(i + 1).String()[:3], h)
		}
		fmt.Fprintf(out, "%s vs previous month: %+.1f%%\n", month, report.MonthChange)
		return nil
	},
}

func init() {
	dailyCmd.Flags().StringVar(&dailyDate, "date", "", "Day to report (YYYY-MM-DD, default today)")
	trainingCmd.Flags().IntVar(&trainingYear, "year", 0, "Year to report (default current year)")
	rootCmd.AddCommand(dailyCmd, trainingCmd)
}
