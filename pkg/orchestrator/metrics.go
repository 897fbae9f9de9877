package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Submissions     *prometheus.CounterVec
	FingerprintHits *prometheus.CounterVec
	Recoveries      *prometheus.CounterVec
	Outcomes        *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
}

// NewMetrics registers the orchestration metrics with reg. A nil reg yields
// working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediagate",
			Name:      "submissions_total",
			Help:      "Transactions accepted by the node.",
		}, []string{"variant", "kind"}),
		FingerprintHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediagate",
			Name:      "fingerprint_hits_total",
			Help:      "Creation requests answered from an existing content hash.",
		}, []string{"variant"}),
		Recoveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediagate",
			Name:      "hash_mismatch_recoveries_total",
			Help:      "Submissions recovered after the node reported a different hash.",
		}, []string{"variant"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediagate",
			Name:      "tracked_outcomes_total",
			Help:      "Final outcomes observed by the receipt tracker.",
		}, []string{"variant", "kind", "state"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediagate",
			Name:      "tracker_queue_depth",
			Help:      "Submissions waiting for a tracker worker.",
		}),
	}
}
