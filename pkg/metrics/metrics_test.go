package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SnapshotRead("contacts", 3)
		m.SnapshotSkipped("contacts", "shape_mismatch")
		m.Candidates("contacts", 10, 1)
		m.Published("contacts", 9)
		m.ObserveStage("contacts", "publish", time.Second)
		m.RunFinished("success", time.Now())
		m.SetQualityViolations(map[string]int{"rate_bounds": 1})
		m.CacheFlushed(2)
		m.EventPublished("transform.completed", nil)
	})
}

func TestRecording(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Candidates("campaigns", 5, 2)
	m.Published("campaigns", 3)
	m.RunFinished("failed", time.Unix(1771236000, 0))
	m.EventPublished("quality.reports", errors.New("broker down"))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.CandidatesTotal.WithLabelValues("campaigns")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandidatesDropped.WithLabelValues("campaigns")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsPublished.WithLabelValues("campaigns")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastRunSuccessful))
	assert.Equal(t, 1771236000.0, testutil.ToFloat64(m.LastRunTimestamp))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("quality.reports", "error")))

	m.SetQualityViolations(map[string]int{"rate_bounds": 4, "no_future_dates": 0})
	m.SetQualityViolations(map[string]int{"rate_bounds": 1})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QualityViolations.WithLabelValues("rate_bounds")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.QualityViolations))
}
