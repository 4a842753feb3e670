package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "poolboard"

// Fetch sources.
const (
	SourcePools     = "pools"
	SourceStats     = "stats"
	SourcePositions = "positions"
)

// Action outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected_in_flight"
)

// Metrics contains all the Prometheus metrics of the dashboard backend.
// Methods are safe on a nil *Metrics so components can run without them.
type Metrics struct {
	// --- Fetch cycles ---
	FetchDuration *prometheus.HistogramVec
	FetchErrors   *prometheus.CounterVec
	PoolsInView   prometheus.Gauge
	UnmatchedPool prometheus.Gauge
	StaleDiscards *prometheus.CounterVec

	// --- Actions ---
	ActionsTotal  *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		FetchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time taken by a fetch against a data source.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		FetchErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed fetches, labeled by data source.",
		}, []string{"source"}),

		PoolsInView: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pools_in_view",
			Help:      "Number of pools in the last applied pool view.",
		}),

		UnmatchedPool: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pools_without_stats",
			Help:      "Pools in the last applied view that had no matching statistics.",
		}),

		StaleDiscards: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_discarded_total",
			Help:      "Results dropped because a newer request superseded them.",
		}, []string{"component"}),

		ActionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Dispatched user actions, labeled by kind and outcome.",
		}, []string{"kind", "outcome"}),

		PhaseDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_phase_duration_seconds",
			Help:      "Time spent in each phase of an action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "phase"}),
	}
}

// ObserveFetch records the duration of a fetch that started at start, and
// counts it as an error when err is non-nil.
func (m *Metrics) ObserveFetch(source string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		m.FetchErrors.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) SetPoolView(total, unmatched int) {
	if m == nil {
		return
	}
	m.PoolsInView.Set(float64(total))
	m.UnmatchedPool.Set(float64(unmatched))
}

func (m *Metrics) StaleDiscarded(component string) {
	if m == nil {
		return
	}
	m.StaleDiscards.WithLabelValues(component).Inc()
}

func (m *Metrics) ObservePhase(kind, phase string, start time.Time) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(kind, phase).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ActionOutcome(kind, outcome string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(kind, outcome).Inc()
}
