package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Mutation is a single row write against a backend table.
type Mutation struct {
	Table  Table           `json:"table"`
	Op     Op              `json:"op"`
	UserID string          `json:"user_id"`
	RowID  string          `json:"row_id"`
	Row    json.RawMessage `json:"row,omitempty"`
}

// Validate checks the mutation envelope. It does not inspect the row body.
func (m Mutation) Validate() error {
	var problems []string
	if !m.Table.Valid() {
		problems = append(problems, fmt.Sprintf("table %q is not supported", m.Table))
	}
	if !m.Op.Valid() {
		problems = append(problems, fmt.Sprintf("op %q is not supported", m.Op))
	}
	if strings.TrimSpace(m.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if strings.TrimSpace(m.RowID) == "" {
		problems = append(problems, "row_id is required")
	}
	if m.Op != OpDelete && len(m.Row) == 0 {
		problems = append(problems, "row is required for "+string(m.Op))
	}
	return joinProblems(problems)
}

// Normalize validates the mutation and its row, stamps the row with the mutation's
// identity, and returns the mutation with the re-encoded row alongside the typed record.
// Deletes carry no record.
func (m Mutation) Normalize() (Mutation, Record, error) {
	if m.Table == TableProfiles && m.RowID == "" {
		m.RowID = m.UserID
	}
	if err := m.Validate(); err != nil {
		return Mutation{}, nil, err
	}
	if m.Op == OpDelete {
		m.Row = nil
		return m, nil, nil
	}

	rec, err := DecodeRow(m.Table, m.Row)
	if err != nil {
		return Mutation{}, nil, err
	}
	rec = withIdentity(m.Table, rec, m.RowID, m.UserID)
	if err := rec.Validate(); err != nil {
		return Mutation{}, nil, err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return Mutation{}, nil, fmt.Errorf("encode row: %w", err)
	}
	m.Row = body
	return m, rec, nil
}

// DecodeRow decodes a row body into the record type stored in table.
func DecodeRow(table Table, raw json.RawMessage) (Record, error) {
	switch table {
	case TableNutritionLogs:
		return decodeRecord[NutritionLogEntry](raw)
	case TableWorkoutLogs:
		return decodeRecord[WorkoutLogEntry](raw)
	case TableJoggingLogs:
		return decodeRecord[JoggingLogEntry](raw)
	case TableWeightLogs:
		return decodeRecord[WeightLogEntry](raw)
	case TableProfiles:
		return decodeRecord[Profile](raw)
	case TableBodyAnalysis, TableFoodAnalysis:
		return decodeRecord[AnalysisEntry](raw)
	}
	return nil, fmt.Errorf("%w: unknown table %q", ErrValidation, table)
}

func decodeRecord[T Record](raw json.RawMessage) (Record, error) {
	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode row: %v", ErrValidation, err)
	}
	return rec, nil
}

func withIdentity(table Table, rec Record, id, userID string) Record {
	switch r := rec.(type) {
	case NutritionLogEntry:
		r.ID, r.UserID = id, userID
		return r
	case WorkoutLogEntry:
		r.ID, r.UserID = id, userID
		return r
	case JoggingLogEntry:
		r.ID, r.UserID = id, userID
		return r
	case WeightLogEntry:
		r.ID, r.UserID = id, userID
		return r
	case Profile:
		r.UserID = userID
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = time.Now().UTC()
		}
		return r
	case AnalysisEntry:
		r.ID, r.UserID = id, userID
		switch table {
		case TableBodyAnalysis:
			r.Kind = AnalysisBody
		case TableFoodAnalysis:
			r.Kind = AnalysisFood
		}
		return r
	}
	return rec
}
