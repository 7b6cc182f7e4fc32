package domain

import "fmt"

// Table names a backend table mirrored by the live sync layer.
type Table string

const (
	TableNutritionLogs Table = "nutrition_logs"
	TableWorkoutLogs   Table = "workout_logs"
	TableJoggingLogs   Table = "jogging_logs"
	TableWeightLogs    Table = "weight_logs"
	TableProfiles      Table = "profiles"
	TableBodyAnalysis  Table = "body_analysis"
	TableFoodAnalysis  Table = "food_analysis"
)

// AllTables returns every mirrored table in a stable order.
func AllTables() []Table {
	return []Table{
		TableNutritionLogs,
		TableWorkoutLogs,
		TableJoggingLogs,
		TableWeightLogs,
		TableProfiles,
		TableBodyAnalysis,
		TableFoodAnalysis,
	}
}

// ParseTable validates a table name.
func ParseTable(value string) (Table, error) {
	t := Table(value)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown table %q", ErrValidation, value)
	}
	return t, nil
}

func (t Table) Valid() bool {
	switch t {
	case TableNutritionLogs, TableWorkoutLogs, TableJoggingLogs, TableWeightLogs, TableProfiles, TableBodyAnalysis, TableFoodAnalysis:
		return true
	}
	return false
}

// Topic is the change-feed topic carrying row events for the table.
func (t Table) Topic() string {
	return "fittrack." + string(t) + ".changes"
}

// SchemaSubject is the registry subject describing change events for the table.
func (t Table) SchemaSubject() string {
	return t.Topic() + "-value"
}

// Label returns a human readable table name.
func (t Table) Label() string {
	switch t {
	case TableNutritionLogs:
		return "Nutrition log"
	case TableWorkoutLogs:
		return "Workout log"
	case TableJoggingLogs:
		return "Jogging log"
	case TableWeightLogs:
		return "Weight log"
	case TableProfiles:
		return "Profile"
	case TableBodyAnalysis:
		return "Body analysis"
	case TableFoodAnalysis:
		return "Food analysis"
	}
	return ""
}
