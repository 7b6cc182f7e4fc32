// Package observability holds process-wide watermark gauges.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rowPersistGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "persistence",
		Name:      "last_row_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent mutation committed to Postgres, per table.",
	}, []string{"table"})
	rowAppliedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "livesync",
		Name:      "last_change_applied_timestamp_seconds",
		Help:      "Unix timestamp of the commit time of the most recent change applied to a mirror, per table.",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(rowPersistGauge, rowAppliedGauge)
}

// RecordRowPersisted updates the persistence watermark for table.
func RecordRowPersisted(table string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	rowPersistGauge.WithLabelValues(table).Set(float64(ts.Unix()))
}

// RecordChangeApplied updates the mirror watermark for table.
func RecordChangeApplied(table string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	rowAppliedGauge.WithLabelValues(table).Set(float64(ts.Unix()))
}
