package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementBatch("DONE")
	m.IncrementScored("CRITICAL")
	m.IncrementScored("CRITICAL")
	m.IncrementScored("LOW")
	m.IncrementRecordError()
	m.IncrementLookupMiss("occupation")
	m.IncrementSanctionsMatch()
	m.IncrementEvent("audit", nil)
	m.IncrementEvent("audit", errors.New("broker down"))
	m.ObserveBatchDuration(150 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Batches.WithLabelValues("DONE")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsScored.WithLabelValues("CRITICAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsScored.WithLabelValues("LOW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupMisses.WithLabelValues("occupation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SanctionsMatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("audit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("audit", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BatchDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementBatch("DONE")
		m.IncrementScored("LOW")
		m.IncrementRecordError()
		m.IncrementLookupMiss("occupation")
		m.IncrementSanctionsMatch()
		m.ObserveBatchDuration(time.Second)
		m.IncrementNarrative("template")
		m.IncrementEvent("alerts", nil)
	})
}
