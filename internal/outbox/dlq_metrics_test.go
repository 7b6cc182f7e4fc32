package outbox

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
)

func TestDeadLetterMetricsUseTableAndOperation(t *testing.T) {
	entry := dlqEntry{
		EventType: events.EventType(domain.TableNutritionLogs, domain.OpUpdate),
		Topic:     domain.TableNutritionLogs.Topic(),
	}
	table, op := changeLabels(entry)
	require.Equal(t, "nutrition_logs", table)
	require.Equal(t, "update", op)

	before := testutil.ToFloat64(deadLetterDeferred.WithLabelValues("nutrition_logs", "update"))
	recordDeferred(entry)
	require.InDelta(t, before+1, testutil.ToFloat64(deadLetterDeferred.WithLabelValues("nutrition_logs", "update")), 0.0001)

	table, op = changeLabels(dlqEntry{EventType: "garbage"})
	require.Equal(t, "unknown", table)
	require.Equal(t, "unknown", op)
}
