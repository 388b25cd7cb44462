package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry engine. Every series is
// labelled by collection so one registry's traffic stays separable.
type Metrics struct {
	EntriesCreated     *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	EvidenceAttached   *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntriesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safetyaudit_registry_entries_created_total",
			Help: "Registry entries persisted",
		}, []string{"collection"}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safetyaudit_registry_validation_failures_total",
			Help: "Entry writes rejected before persistence",
		}, []string{"collection"}),
		EvidenceAttached: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safetyaudit_registry_evidence_attached_total",
			Help: "Evidence references appended to existing entries",
		}, []string{"collection"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safetyaudit_registry_query_duration_seconds",
			Help:    "Duration of by-parent registry queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"collection"}),
	}
}

func (m *Metrics) IncrementEntriesCreated(collection string) {
	m.EntriesCreated.WithLabelValues(collection).Inc()
}

func (m *Metrics) IncrementValidationFailures(collection string) {
	m.ValidationFailures.WithLabelValues(collection).Inc()
}

func (m *Metrics) AddEvidenceAttached(collection string, n int) {
	m.EvidenceAttached.WithLabelValues(collection).Add(float64(n))
}

// ObserveQuery records the duration of a by-parent query.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveQuery(collection string, start time.Time) {
	m.QueryDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
}
