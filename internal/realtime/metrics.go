package realtime

import (
	"github.com/prometheus/client_golang/prometheus"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
)

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "realtime",
		Name:      "changes_delivered_total",
		Help:      "Number of row changes handed to a channel handler without error.",
	}, []string{"table", "operation"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "realtime",
		Name:      "handler_errors_total",
		Help:      "Number of handler errors per table.",
	}, []string{"table"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "realtime",
		Name:      "decode_errors_total",
		Help:      "Number of change-feed messages that could not be decoded, per table.",
	}, []string{"table"})

	subscribeFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "realtime",
		Name:      "subscribe_failures_total",
		Help:      "Number of channel subscriptions that failed to open.",
	}, []string{"table"})

	openChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "realtime",
		Name:      "open_channels",
		Help:      "Channels currently subscribed.",
	})

	lastChangeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "realtime",
		Name:      "last_change_timestamp_seconds",
		Help:      "Commit time of the most recent change delivered per table.",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, handlerErrorCounter, decodeErrorCounter, subscribeFailureCounter, openChannels, lastChangeGauge)
}

func recordDelivered(change events.RowChanged) {
	deliveredCounter.WithLabelValues(string(change.Table), string(change.Operation)).Inc()
	if !change.CommittedAt.IsZero() {
		lastChangeGauge.WithLabelValues(string(change.Table)).Set(float64(change.CommittedAt.Unix()))
	}
}

func recordHandlerError(table domain.Table) {
	handlerErrorCounter.WithLabelValues(string(table)).Inc()
}

func recordDecodeError(table domain.Table) {
	decodeErrorCounter.WithLabelValues(string(table)).Inc()
}

func recordSubscribeFailure(table domain.Table) {
	subscribeFailureCounter.WithLabelValues(string(table)).Inc()
}
