package aggregate

import "github.com/prometheus/client_golang/prometheus"

var (
	failureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "aggregate",
		Name:      "failures_total",
		Help:      "Number of aggregation calls that failed and returned zeroed defaults.",
	}, []string{"operation"})

	notesWarningCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "aggregate",
		Name:      "unreadable_notes_total",
		Help:      "Number of entries whose notes blob could not be read during aggregation.",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(failureCounter, notesWarningCounter)
}

func recordFailure(operation string) {
	failureCounter.WithLabelValues(operation).Inc()
}

func recordUnreadableNotes(table string) {
	notesWarningCounter.WithLabelValues(table).Inc()
}
