package sync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. Label sets are closed
// (action names and status values) so cardinality stays bounded.
type Metrics struct {
	sent         *prometheus.CounterVec
	failed       *prometheus.CounterVec
	deadLettered prometheus.Counter
	conflicts    *prometheus.CounterVec
	outboxDepth  prometheus.Gauge
	status       *prometheus.GaugeVec
	sendLatency  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "till_sync_entries_sent_total",
			Help: "Outbox entries acknowledged by the backend.",
		}, []string{"action"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "till_sync_send_failures_total",
			Help: "Failed mutation sends.",
		}, []string{"action"}),
		deadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "till_sync_dead_lettered_total",
			Help: "Outbox entries moved to the dead-letter state.",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "till_sync_conflicts_total",
			Help: "Conflicts resolved, by winning side.",
		}, []string{"winner"}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "till_sync_outbox_depth",
			Help: "Live outbox entries after the last drain.",
		}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "till_sync_status",
			Help: "1 for the current sync status, 0 otherwise.",
		}, []string{"status"}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "till_sync_send_duration_seconds",
			Help:    "Duration of single mutation sends.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sent, m.failed, m.deadLettered, m.conflicts, m.outboxDepth, m.status, m.sendLatency)
	}
	return m
}

func (m *Metrics) setStatus(s Status) {
	for _, st := range []Status{StatusIdle, StatusSyncing, StatusSynced, StatusOffline, StatusError} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.status.WithLabelValues(string(st)).Set(v)
	}
}
