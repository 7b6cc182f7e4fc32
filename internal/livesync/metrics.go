package livesync

import "github.com/prometheus/client_golang/prometheus"

var (
	onlineGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "livesync",
		Name:      "backend_online",
		Help:      "1 when the backend is reachable, 0 otherwise.",
	})

	transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "livesync",
		Name:      "connectivity_transitions_total",
		Help:      "Connectivity transitions by new state.",
	}, []string{"state"})

	sessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "livesync",
		Name:      "sessions",
		Help:      "Number of live sessions held by the manager.",
	})
)

func init() {
	prometheus.MustRegister(onlineGauge, transitionCounter, sessionsGauge)
}
