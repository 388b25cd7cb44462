package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the accident lifecycle.
type Metrics struct {
	AccidentsCreated       *prometheus.CounterVec
	AccidentsClosed        prometheus.Counter
	DaysLost               prometheus.Counter
	DirectoryUpdateFailure *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AccidentsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safetyaudit_accidents_created_total",
			Help: "Accidents and incidents reported",
		}, []string{"kind"}),
		AccidentsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "safetyaudit_accidents_closed_total",
			Help: "Accidents transitioned to closed",
		}),
		DaysLost: f.NewCounter(prometheus.CounterOpts{
			Name: "safetyaudit_accident_days_lost_total",
			Help: "Lost workdays finalized at closure",
		}),
		DirectoryUpdateFailure: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safetyaudit_directory_update_failures_total",
			Help: "Person status updates the directory rejected or missed",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncrementCreated(kind string) {
	m.AccidentsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordClosure(daysLost int) {
	m.AccidentsClosed.Inc()
	m.DaysLost.Add(float64(daysLost))
}

func (m *Metrics) IncrementDirectoryFailure(status string) {
	m.DirectoryUpdateFailure.WithLabelValues(status).Inc()
}
