package outbox

import (
	"fmt"

	"example.com/fittrack/internal/events"
)

// rowChangedSchema is the JSON schema registered for every table subject. The
// envelope is shared; the table property is pinned per subject.
const rowChangedSchema = `{
  "type": "object",
  "title": "RowChanged",
  "properties": {
    "table": {"const": %q},
    "operation": {"enum": ["insert", "update", "delete"]},
    "row_id": {"type": "string"},
    "user_id": {"type": "string"},
    "row": {"type": "object"},
    "committed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["table", "operation", "row_id", "user_id", "committed_at"],
  "additionalProperties": false
}`

// schemaFor returns the schema registered for an event type such as "weight_logs.insert".
func schemaFor(eventType string) (string, error) {
	table, _, err := events.ParseEventType(eventType)
	if err != nil {
		return "", fmt.Errorf("no schema metadata for event_type=%s", eventType)
	}
	return fmt.Sprintf(rowChangedSchema, string(table)), nil
}
