package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for batch scoring and its adapters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Batches by terminal phase (DONE, ABORTED)
	Batches *prometheus.CounterVec

	// Scored records by band
	RecordsScored *prometheus.CounterVec

	// Records that failed to score
	RecordErrors prometheus.Counter

	// Reference data lookup misses by table
	LookupMisses *prometheus.CounterVec

	// Positive sanctions match decisions
	SanctionsMatches prometheus.Counter

	// Wall-clock duration of a batch
	BatchDuration prometheus.Histogram

	// Narrative outcomes by source (llm, template, fallback)
	Narratives *prometheus.CounterVec

	// Published events by topic and outcome
	EventsPublished *prometheus.CounterVec
}

// New registers all metrics with reg. Pass prometheus.DefaultRegisterer in main
// and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_risk_batches_total",
			Help: "Total batch runs by terminal phase",
		}, []string{"phase"}),

		RecordsScored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_risk_records_scored_total",
			Help: "Total scored customer records by risk band",
		}, []string{"band"}),

		RecordErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "kyc_risk_record_errors_total",
			Help: "Total customer records that failed to score",
		}),

		LookupMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_risk_lookup_misses_total",
			Help: "Total reference data lookup misses by table",
		}, []string{"table"}),

		SanctionsMatches: f.NewCounter(prometheus.CounterOpts{
			Name: "kyc_risk_sanctions_matches_total",
			Help: "Total positive sanctions match decisions",
		}),

		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_risk_batch_duration_seconds",
			Help:    "Duration of a full batch run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		Narratives: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_risk_narratives_total",
			Help: "Total generated narratives by source",
		}, []string{"source"}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_risk_events_published_total",
			Help: "Total published events by topic and outcome",
		}, []string{"topic", "outcome"}),
	}
}

// IncrementBatch records a finished or aborted batch.
func (m *Metrics) IncrementBatch(phase string) {
	if m != nil {
		m.Batches.WithLabelValues(phase).Inc()
	}
}

// IncrementScored records a scored record.
func (m *Metrics) IncrementScored(band string) {
	if m != nil {
		m.RecordsScored.WithLabelValues(band).Inc()
	}
}

// IncrementRecordError records a record that failed to score.
func (m *Metrics) IncrementRecordError() {
	if m != nil {
		m.RecordErrors.Inc()
	}
}

// IncrementLookupMiss records a reference data miss.
func (m *Metrics) IncrementLookupMiss(table string) {
	if m != nil {
		m.LookupMisses.WithLabelValues(table).Inc()
	}
}

// IncrementSanctionsMatch records a positive match decision.
func (m *Metrics) IncrementSanctionsMatch() {
	if m != nil {
		m.SanctionsMatches.Inc()
	}
}

// ObserveBatchDuration records how long a batch took.
func (m *Metrics) ObserveBatchDuration(d time.Duration) {
	if m != nil {
		m.BatchDuration.Observe(d.Seconds())
	}
}

// IncrementNarrative records a narrative by source.
func (m *Metrics) IncrementNarrative(source string) {
	if m != nil {
		m.Narratives.WithLabelValues(source).Inc()
	}
}

// IncrementEvent records a publish attempt.
func (m *Metrics) IncrementEvent(topic string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EventsPublished.WithLabelValues(topic, outcome).Inc()
}
