package offline

import (
	"github.com/prometheus/client_golang/prometheus"

	"example.com/fittrack/internal/domain"
)

var (
	queuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "offline",
		Name:      "actions_queued_total",
		Help:      "Number of mutations queued while the backend was unreachable.",
	}, []string{"table"})

	appliedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "offline",
		Name:      "actions_applied_total",
		Help:      "Number of queued mutations applied during a drain.",
	}, []string{"table"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "offline",
		Name:      "actions_failed_total",
		Help:      "Number of queued mutations the backend rejected during a drain. They are dropped.",
	}, []string{"table"})

	backlogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "offline",
		Name:      "backlog_actions",
		Help:      "Mutations waiting in the local store for every user.",
	})
)

func init() {
	prometheus.MustRegister(queuedCounter, appliedCounter, failedCounter, backlogGauge)
}

func recordQueued(table domain.Table) {
	queuedCounter.WithLabelValues(string(table)).Inc()
}

func recordApplied(table domain.Table) {
	appliedCounter.WithLabelValues(string(table)).Inc()
}

func recordFailed(table domain.Table) {
	failedCounter.WithLabelValues(string(table)).Inc()
}
