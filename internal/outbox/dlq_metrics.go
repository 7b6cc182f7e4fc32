package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"example.com/fittrack/internal/events"
)

// Dead-lettered row changes are counted per table and operation.
var (
	deadLetterReplayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "dead_letter",
		Name:      "row_changes_replayed_total",
		Help:      "Dead-lettered row changes put back on the change outbox for publishing.",
	}, []string{"table", "operation"})

	deadLetterParked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "dead_letter",
		Name:      "row_changes_parked_total",
		Help:      "Row changes parked for manual review after their replay budget ran out.",
	}, []string{"table", "operation"})

	deadLetterDeferred = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "dead_letter",
		Name:      "replays_deferred_total",
		Help:      "Failed replays pushed back with a longer delay.",
	}, []string{"table", "operation"})

	deadLetterPending = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "dead_letter",
		Name:      "row_changes_pending",
		Help:      "Row changes waiting for replay, by table. Parked changes are not counted.",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(deadLetterReplayed, deadLetterParked, deadLetterDeferred, deadLetterPending)
}

// changeLabels names the table and operation of a dead letter. Event types that do not
// parse are reported as "unknown".
func changeLabels(entry dlqEntry) (table, operation string) {
	t, op, err := events.ParseEventType(entry.EventType)
	if err != nil {
		return "unknown", "unknown"
	}
	return string(t), string(op)
}

func recordReplayed(entry dlqEntry) {
	deadLetterReplayed.WithLabelValues(changeLabels(entry)).Inc()
}

func recordParked(entry dlqEntry) {
	deadLetterParked.WithLabelValues(changeLabels(entry)).Inc()
}

func recordDeferred(entry dlqEntry) {
	deadLetterDeferred.WithLabelValues(changeLabels(entry)).Inc()
}

func refreshPending(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `SELECT event_type, COUNT(*) FROM change_outbox_dlq WHERE quarantined_at IS NULL GROUP BY event_type`)
	if err != nil {
		return
	}
	defer rows.Close()

	pending := make(map[string]float64)
	for rows.Next() {
		var (
			eventType string
			count     int
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return
		}
		table, _ := changeLabels(dlqEntry{EventType: eventType})
		pending[table] += float64(count)
	}
	if rows.Err() != nil {
		return
	}
	deadLetterPending.Reset()
	for table, count := range pending {
		deadLetterPending.WithLabelValues(table).Set(count)
	}
}
