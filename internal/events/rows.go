// Package events defines the change-feed payloads shared by the relay and the live sync layer.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"example.com/fittrack/internal/domain"
)

// RowChanged is published once per committed mutation on the table's topic.
// Row carries the full row after the change and is empty for deletes.
type RowChanged struct {
	Table       domain.Table    `json:"table"`
	Operation   domain.Op       `json:"operation"`
	RowID       string          `json:"row_id"`
	UserID      string          `json:"user_id"`
	Row         json.RawMessage `json:"row,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

// EventType names the event for routing headers, e.g. "weight_logs.insert".
func (e RowChanged) EventType() string {
	return EventType(e.Table, e.Operation)
}

// Record decodes Row into the table's record type. Deletes return nil.
func (e RowChanged) Record() (domain.Record, error) {
	if e.Operation == domain.OpDelete || len(e.Row) == 0 {
		return nil, nil
	}
	return domain.DecodeRow(e.Table, e.Row)
}

// EventType joins table and operation.
func EventType(table domain.Table, op domain.Op) string {
	return string(table) + "." + string(op)
}

// ParseEventType splits an event type produced by EventType.
func ParseEventType(value string) (domain.Table, domain.Op, error) {
	table, op, ok := strings.Cut(value, ".")
	if !ok {
		return "", "", fmt.Errorf("%w: event type %q", domain.ErrValidation, value)
	}
	t, err := domain.ParseTable(table)
	if err != nil {
		return "", "", err
	}
	o := domain.Op(op)
	if !o.Valid() {
		return "", "", fmt.Errorf("%w: operation %q", domain.ErrValidation, op)
	}
	return t, o, nil
}
