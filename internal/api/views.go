package api

import (
	"example.com/fittrack/internal/aggregate"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/livesync"
)

// WriteResponse is returned by POST /v1/logs. Queued writes carry the offline action id.
type WriteResponse struct {
	RowID    string             `json:"row_id"`
	Queued   bool               `json:"queued"`
	ActionID string             `json:"action_id,omitempty"`
	Change   *events.RowChanged `json:"change,omitempty"`
}

// LogPage is one page of GET /v1/logs. NextCursor is empty on the last page.
type LogPage struct {
	Table      domain.Table    `json:"table"`
	Items      []domain.Record `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// SyncStatusResponse describes connectivity and the offline backlog.
type SyncStatusResponse struct {
	Online   bool `json:"online"`
	Loading  bool `json:"loading"`
	Pending  int  `json:"pending"`
	Draining bool `json:"draining"`
}

// DrainFailure is one rejected offline action.
type DrainFailure struct {
	ActionID string       `json:"action_id"`
	Table    domain.Table `json:"table"`
	RowID    string       `json:"row_id"`
	Error    string       `json:"error"`
}

// DrainResponse summarises a drain pass.
type DrainResponse struct {
	Attempted int            `json:"attempted"`
	Applied   int            `json:"applied"`
	Failed    []DrainFailure `json:"failed,omitempty"`
	Skipped   bool           `json:"skipped"`
}

type NotificationsResponse struct {
	Items []livesync.Notification `json:"items"`
}

// AnalysisView is an analysis entry with its resolved image URL.
type AnalysisView struct {
	domain.AnalysisEntry
	ImageURL string `json:"image_url,omitempty"`
}

type AnalysisResponse struct {
	Kind  domain.AnalysisKind `json:"kind"`
	Items []AnalysisView      `json:"items"`
}

// DailyDashboard is the home screen payload for one day.
type DailyDashboard struct {
	Date           string                     `json:"date"`
	Nutrition      aggregate.DayComparison    `json:"nutrition"`
	Donut          []aggregate.DonutSlice     `json:"macro_donut"`
	Targets        []aggregate.TargetRow      `json:"targets"`
	WeeklyCalories []aggregate.CaloriePoint   `json:"weekly_calories"`
	Training       aggregate.TrainingTotals   `json:"training"`
	WeightTrend    aggregate.WeightTrend      `json:"weight_trend"`
	Challenge      *aggregate.ChallengeStatus `json:"challenge,omitempty"`
}

type CalendarResponse struct {
	Year  int                     `json:"year"`
	Month int                     `json:"month"`
	Days  []aggregate.CalendarDay `json:"days"`
}

// TrainingResponse carries hours per month, January first, and the change of Month
// against the month before it.
type TrainingResponse struct {
	Year        int       `json:"year"`
	Hours       []float64 `json:"hours"`
	Month       int       `json:"month"`
	MonthChange float64   `json:"month_change_pct"`
}

type ChallengeResponse struct {
	Challenge domain.Challenge           `json:"challenge"`
	Status    *aggregate.ChallengeStatus `json:"status,omitempty"`
}
