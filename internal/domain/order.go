package domain

import "time"

// OccurredAt returns the timestamp a record is ordered by in most-recent-first listings.
func OccurredAt(rec Record) time.Time {
	switch r := rec.(type) {
	case NutritionLogEntry:
		return r.CompletedAt
	case WorkoutLogEntry:
		return r.CompletedAt
	case JoggingLogEntry:
		return r.CompletedAt
	case WeightLogEntry:
		return r.MeasuredAt
	case Profile:
		return r.UpdatedAt
	case AnalysisEntry:
		return r.CreatedAt
	}
	return time.Time{}
}

// Before reports whether a sorts before b in most-recent-first order.
// Ties on time are broken by descending id.
func Before(a, b Record) bool {
	ta, tb := OccurredAt(a), OccurredAt(b)
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.RecordID() > b.RecordID()
}
