package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMutationNormalizeStampsIdentity(t *testing.T) {
	row := `{"id":"spoofed","user_id":"someone-else","meal_type":"lunch","calories":450,"food_name":"Rice bowl","completed_at":"2025-03-02T12:30:00Z"}`
	m, rec, err := Mutation{Table: TableNutritionLogs, Op: OpInsert, UserID: "user-1", RowID: "row-1", Row: json.RawMessage(row)}.Normalize()
	require.NoError(t, err)

	entry, ok := rec.(NutritionLogEntry)
	require.True(t, ok)
	require.Equal(t, "row-1", entry.ID)
	require.Equal(t, "user-1", entry.UserID)
	require.Contains(t, string(m.Row), `"user_id":"user-1"`)
}

func TestMutationNormalizeRejectsInvalidRows(t *testing.T) {
	cases := map[string]Mutation{
		"unknown table": {Table: "sleep_logs", Op: OpInsert, UserID: "u", RowID: "r", Row: json.RawMessage(`{}`)},
		"missing row":   {Table: TableWeightLogs, Op: OpUpdate, UserID: "u", RowID: "r"},
		"bad weight":    {Table: TableWeightLogs, Op: OpInsert, UserID: "u", RowID: "r", Row: json.RawMessage(`{"weight":0,"measured_at":"2025-01-01T00:00:00Z"}`)},
		"no unit":       {Table: TableJoggingLogs, Op: OpInsert, UserID: "u", RowID: "r", Row: json.RawMessage(`{"distance":5,"duration":30,"completed_at":"2025-01-01T07:00:00Z"}`)},
		"bad notes":     {Table: TableNutritionLogs, Op: OpInsert, UserID: "u", RowID: "r", Row: json.RawMessage(`{"meal_type":"snack","calories":10,"food_name":"tea","notes":"free text","completed_at":"2025-01-01T07:00:00Z"}`)},
		"not json":      {Table: TableWeightLogs, Op: OpInsert, UserID: "u", RowID: "r", Row: json.RawMessage(`[1,2]`)},
	}
	for name, m := range cases {
		_, _, err := m.Normalize()
		require.ErrorIs(t, err, ErrValidation, name)
	}
}

func TestMutationNormalizeDeleteAndProfile(t *testing.T) {
	m, rec, err := Mutation{Table: TableWorkoutLogs, Op: OpDelete, UserID: "u", RowID: "r", Row: json.RawMessage(`{"x":1}`)}.Normalize()
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Nil(t, m.Row)

	m, rec, err = Mutation{Table: TableProfiles, Op: OpUpdate, UserID: "u", Row: json.RawMessage(`{"height":180,"body_type":"mesomorph"}`)}.Normalize()
	require.NoError(t, err)
	require.Equal(t, "u", m.RowID)
	require.Equal(t, "u", rec.RecordID())
}

func TestAnalysisKindFollowsTable(t *testing.T) {
	row := `{"kind":"food","source":"manual","notes":"{\"bmi\":23}","created_at":"2025-01-01T07:00:00Z"}`
	_, rec, err := Mutation{Table: TableBodyAnalysis, Op: OpInsert, UserID: "u", RowID: "a", Row: json.RawMessage(row)}.Normalize()
	require.NoError(t, err)
	require.Equal(t, AnalysisBody, rec.(AnalysisEntry).Kind)
}

func TestJoggingElapsedUsesDeclaredUnit(t *testing.T) {
	run := JoggingLogEntry{Duration: 120, DurationUnit: DurationMinutes}
	require.Equal(t, 2*time.Hour, run.Elapsed())
	run.DurationUnit = DurationSeconds
	require.Equal(t, 2*time.Minute, run.Elapsed())
}

func TestEnumsHaveLabels(t *testing.T) {
	for _, m := range MealTypes() {
		require.NotEmpty(t, m.Label())
	}
	for _, table := range AllTables() {
		require.NotEmpty(t, table.Label())
		require.True(t, strings.HasSuffix(table.SchemaSubject(), "-value"))
	}
	require.Empty(t, MealType("brunch").Label())
}

func TestExtractJSON(t *testing.T) {
	text := "Here is your result:\n```json\n{\"bmi\": 22.5, \"note\": \"a {brace} inside\"}\n```\nThanks!"
	body, err := ExtractJSON(text)
	require.NoError(t, err)
	require.JSONEq(t, `{"bmi":22.5,"note":"a {brace} inside"}`, string(body))

	_, err = ExtractJSON("no payload here")
	require.ErrorIs(t, err, ErrNoJSON)

	body, err = ExtractJSON("{oops} then {\"ok\":true}")
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))
}

func TestParseAnalysisNotesFallsBack(t *testing.T) {
	payload, ok := ParseAnalysisNotes(AnalysisFood, "model refused")
	require.False(t, ok)
	require.Equal(t, DefaultAnalysis(AnalysisFood), payload)

	payload, ok = ParseAnalysisNotes(AnalysisBody, `result: {"bmi": 24, "posture": "upright"}`)
	require.True(t, ok)
	require.Equal(t, map[string]float64{"bmi": 24}, NumericMetrics(payload))
}
