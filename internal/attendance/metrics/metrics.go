package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the attendance module.
type Metrics struct {
	EventsRecorded    *prometheus.CounterVec
	AnomaliesDetected *prometheus.CounterVec
	IssuesFlagged     *prometheus.CounterVec
	Reconciliations   prometheus.Counter
	SoftDeletions     prometheus.Counter
	SweepRuns         prometheus.Counter
}

// New creates and registers all attendance metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatelog_events_recorded_total",
			Help: "Total gate events persisted, by kind and source",
		}, []string{"kind", "source"}),
		AnomaliesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatelog_anomalies_detected_total",
			Help: "Events downgraded to unknown by the sequencing detector",
		}, []string{"kind"}),
		IssuesFlagged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatelog_validation_issues_total",
			Help: "Validation issues attached by the classifier, by issue kind",
		}, []string{"issue_kind"}),
		Reconciliations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatelog_reconciliations_total",
			Help: "Operator reconciliations applied",
		}),
		SoftDeletions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatelog_soft_deletions_total",
			Help: "Events soft-deleted by operators",
		}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatelog_classifier_sweeps_total",
			Help: "Classifier sweep passes executed",
		}),
	}
}

func (m *Metrics) IncrementEventsRecorded(kind, source string) {
	m.EventsRecorded.WithLabelValues(kind, source).Inc()
}

func (m *Metrics) IncrementAnomalies(kind string) {
	m.AnomaliesDetected.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementIssues(issueKind string) {
	m.IssuesFlagged.WithLabelValues(issueKind).Inc()
}
