// Package domain defines the records tracked for a user and the rules for writing them.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation marks a record or mutation rejected before reaching the backend.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a row cannot be located.
	ErrNotFound = errors.New("record not found")
	// ErrLocked is returned when editing a nutrition entry that was already edited once.
	ErrLocked = errors.New("record is locked")
	// ErrMalformedNotes marks a notes blob that could not be read.
	ErrMalformedNotes = errors.New("malformed notes")
)

// Record is implemented by every mirrored row type.
type Record interface {
	RecordID() string
	Owner() string
	Validate() error
}

// NutritionLogEntry is one logged meal item.
type NutritionLogEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	MealType    MealType  `json:"meal_type"`
	Calories    int       `json:"calories"`
	Protein     *float64  `json:"protein,omitempty"`
	Carbs       *float64  `json:"carbs,omitempty"`
	Fats        *float64  `json:"fats,omitempty"`
	FoodName    string    `json:"food_name"`
	Notes       string    `json:"notes,omitempty"`
	Locked      bool      `json:"locked"`
	CompletedAt time.Time `json:"completed_at"`
}

func (e NutritionLogEntry) RecordID() string { return e.ID }
func (e NutritionLogEntry) Owner() string    { return e.UserID }

// Validate checks required fields and that the notes blob is a well-formed extras payload.
func (e NutritionLogEntry) Validate() error {
	var problems []string
	if strings.TrimSpace(e.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if !e.MealType.Valid() {
		problems = append(problems, fmt.Sprintf("meal_type %q is not supported", e.MealType))
	}
	if strings.TrimSpace(e.FoodName) == "" {
		problems = append(problems, "food_name is required")
	}
	if e.Calories < 0 {
		problems = append(problems, "calories must be >= 0")
	}
	macros := []struct {
		name  string
		value *float64
	}{{"protein", e.Protein}, {"carbs", e.Carbs}, {"fats", e.Fats}}
	for _, m := range macros {
		if m.value != nil && *m.value < 0 {
			problems = append(problems, m.name+" must be >= 0")
		}
	}
	if e.CompletedAt.IsZero() {
		problems = append(problems, "completed_at is required")
	}
	if strings.TrimSpace(e.Notes) != "" {
		if _, err := DecodeNutritionExtras(e.Notes); err != nil {
			problems = append(problems, err.Error())
		}
	}
	return joinProblems(problems)
}

// Extras returns the unit-tagged extras carried in the notes blob, tolerating legacy formats.
func (e NutritionLogEntry) Extras() (NutritionExtras, error) {
	return ParseNutritionNotes(e.Notes)
}

// WorkoutLogEntry is one performed set of an exercise.
type WorkoutLogEntry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ExerciseID  string     `json:"exercise_id"`
	Sets        int        `json:"sets"`
	Reps        int        `json:"reps"`
	Weight      *float64   `json:"weight,omitempty"`
	Unit        WeightUnit `json:"unit"`
	Notes       string     `json:"notes,omitempty"`
	CompletedAt time.Time  `json:"completed_at"`
}

func (e WorkoutLogEntry) RecordID() string { return e.ID }
func (e WorkoutLogEntry) Owner() string    { return e.UserID }

func (e WorkoutLogEntry) Validate() error {
	var problems []string
	if strings.TrimSpace(e.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if strings.TrimSpace(e.ExerciseID) == "" {
		problems = append(problems, "exercise_id is required")
	}
	if e.Sets < 1 {
		problems = append(problems, "sets must be >= 1")
	}
	if e.Reps < 0 {
		problems = append(problems, "reps must be >= 0")
	}
	if e.Weight != nil && *e.Weight < 0 {
		problems = append(problems, "weight must be >= 0")
	}
	if !e.Unit.Valid() {
		problems = append(problems, fmt.Sprintf("unit %q is not supported", e.Unit))
	}
	if e.CompletedAt.IsZero() {
		problems = append(problems, "completed_at is required")
	}
	if strings.TrimSpace(e.Notes) != "" {
		if _, err := DecodeWorkoutNotes(e.Notes); err != nil {
			problems = append(problems, err.Error())
		}
	}
	return joinProblems(problems)
}

// Details returns the exercise metadata carried in the notes blob.
func (e WorkoutLogEntry) Details() (WorkoutNotes, error) {
	return ParseWorkoutNotes(e.Notes)
}

// JoggingLogEntry is one completed run. Duration is interpreted in DurationUnit.
type JoggingLogEntry struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Distance     float64      `json:"distance"`
	Duration     float64      `json:"duration"`
	DurationUnit DurationUnit `json:"duration_unit"`
	Calories     *int         `json:"calories,omitempty"`
	CompletedAt  time.Time    `json:"completed_at"`
}

func (e JoggingLogEntry) RecordID() string { return e.ID }
func (e JoggingLogEntry) Owner() string    { return e.UserID }

func (e JoggingLogEntry) Validate() error {
	var problems []string
	if strings.TrimSpace(e.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if e.Distance < 0 {
		problems = append(problems, "distance must be >= 0")
	}
	if e.Duration <= 0 {
		problems = append(problems, "duration must be > 0")
	}
	if !e.DurationUnit.Valid() {
		problems = append(problems, "duration_unit must be minutes or seconds")
	}
	if e.Calories != nil && *e.Calories < 0 {
		problems = append(problems, "calories must be >= 0")
	}
	if e.CompletedAt.IsZero() {
		problems = append(problems, "completed_at is required")
	}
	return joinProblems(problems)
}

// Elapsed returns the run duration using the declared unit. An unknown unit yields zero.
func (e JoggingLogEntry) Elapsed() time.Duration {
	switch e.DurationUnit {
	case DurationMinutes:
		return time.Duration(e.Duration * float64(time.Minute))
	case DurationSeconds:
		return time.Duration(e.Duration * float64(time.Second))
	}
	return 0
}

// WeightLogEntry is one body weight measurement in kilograms.
type WeightLogEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Weight     float64   `json:"weight"`
	MeasuredAt time.Time `json:"measured_at"`
}

func (e WeightLogEntry) RecordID() string { return e.ID }
func (e WeightLogEntry) Owner() string    { return e.UserID }

func (e WeightLogEntry) Validate() error {
	var problems []string
	if strings.TrimSpace(e.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if e.Weight <= 0 {
		problems = append(problems, "weight must be > 0")
	}
	if e.MeasuredAt.IsZero() {
		problems = append(problems, "measured_at is required")
	}
	return joinProblems(problems)
}

// Profile is one-to-one with a user; its id is the user id.
type Profile struct {
	UserID             string       `json:"user_id"`
	Height             *float64     `json:"height,omitempty"`
	Weight             *float64     `json:"weight,omitempty"`
	BodyType           BodyType     `json:"body_type,omitempty"`
	AthleteLevel       AthleteLevel `json:"athlete_level,omitempty"`
	AvatarURL          string       `json:"avatar_url,omitempty"`
	OnboardingComplete bool         `json:"onboarding_complete"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (p Profile) RecordID() string { return p.UserID }
func (p Profile) Owner() string    { return p.UserID }

func (p Profile) Validate() error {
	var problems []string
	if strings.TrimSpace(p.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if p.Height != nil && *p.Height <= 0 {
		problems = append(problems, "height must be > 0")
	}
	if p.Weight != nil && *p.Weight <= 0 {
		problems = append(problems, "weight must be > 0")
	}
	if p.BodyType != "" && !p.BodyType.Valid() {
		problems = append(problems, fmt.Sprintf("body_type %q is not supported", p.BodyType))
	}
	if p.AthleteLevel != "" && !p.AthleteLevel.Valid() {
		problems = append(problems, fmt.Sprintf("athlete_level %q is not supported", p.AthleteLevel))
	}
	return joinProblems(problems)
}

// AnalysisEntry is a body or food analysis result, either computed by the AI gateway or entered manually.
type AnalysisEntry struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Kind      AnalysisKind       `json:"kind"`
	Source    AnalysisSource     `json:"source"`
	ImageRef  string             `json:"image_ref,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Notes     string             `json:"notes,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

func (e AnalysisEntry) RecordID() string { return e.ID }
func (e AnalysisEntry) Owner() string    { return e.UserID }

func (e AnalysisEntry) Validate() error {
	var problems []string
	if strings.TrimSpace(e.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if !e.Kind.Valid() {
		problems = append(problems, fmt.Sprintf("kind %q is not supported", e.Kind))
	}
	if !e.Source.Valid() {
		problems = append(problems, fmt.Sprintf("source %q is not supported", e.Source))
	}
	if e.CreatedAt.IsZero() {
		problems = append(problems, "created_at is required")
	}
	if e.Source == SourceManual && strings.TrimSpace(e.Notes) != "" {
		if _, err := ExtractJSON(e.Notes); err != nil {
			problems = append(problems, "manual notes must be a JSON object")
		}
	}
	return joinProblems(problems)
}

// Challenge is the device-local weight goal.
type Challenge struct {
	GoalWeight     float64   `json:"goal_weight"`
	DurationMonths int       `json:"duration_months"`
	StartWeight    float64   `json:"start_weight"`
	StartDate      time.Time `json:"start_date"`
}

func (c Challenge) Validate() error {
	var problems []string
	if c.GoalWeight <= 0 {
		problems = append(problems, "goal_weight must be > 0")
	}
	if c.StartWeight <= 0 {
		problems = append(problems, "start_weight must be > 0")
	}
	if c.DurationMonths < 1 {
		problems = append(problems, "duration_months must be >= 1")
	}
	if c.StartDate.IsZero() {
		problems = append(problems, "start_date is required")
	}
	return joinProblems(problems)
}

// EndDate is the day the challenge finishes.
func (c Challenge) EndDate() time.Time {
	return c.StartDate.AddDate(0, c.DurationMonths, 0)
}

// Cursor identifies the position in a most-recent-first listing.
type Cursor struct {
	At time.Time
	ID string
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
}
