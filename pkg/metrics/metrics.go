// Package metrics defines the Prometheus collectors for transform runs and
// exposes an HTTP handler for scraping. All recording methods are safe on a
// nil *Metrics, so callers that run without metrics need no guards.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "engagement_transform"

// Metrics holds every collector exported by the transform. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	SnapshotsRead     *prometheus.CounterVec
	SnapshotsSkipped  *prometheus.CounterVec
	CandidatesTotal   *prometheus.CounterVec
	CandidatesDropped *prometheus.CounterVec
	RowsPublished     *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	RunsTotal         *prometheus.CounterVec
	QualityViolations *prometheus.GaugeVec
	LastRunTimestamp  prometheus.Gauge
	LastRunSuccessful prometheus.Gauge
	CacheKeysFlushed  prometheus.Counter
	EventsPublished   *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		SnapshotsRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_read_total",
				Help:      "Raw snapshots loaded, by entity.",
			},
			[]string{"entity"},
		),
		SnapshotsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_skipped_total",
				Help:      "Snapshots skipped by entity and reason (unsupported, shape_mismatch).",
			},
			[]string{"entity", "reason"},
		),
		CandidatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candidates_total",
				Help:      "Candidate records produced by the flatten stage.",
			},
			[]string{"entity"},
		),
		CandidatesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candidates_dropped_total",
				Help:      "Elements dropped for lacking their natural key.",
			},
			[]string{"entity"},
		),
		RowsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_published_total",
				Help:      "Rows upserted into the structured store.",
			},
			[]string{"entity"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each entity stage in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"entity", "stage"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Transform runs by outcome (success, failed, locked).",
			},
			[]string{"outcome"},
		),
		QualityViolations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "quality_violations",
				Help:      "Violations flagged by the latest quality gate run, by check.",
			},
			[]string{"check"},
		),
		LastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the latest run finished.",
			},
		),
		LastRunSuccessful: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_successful",
				Help:      "1 if the latest run committed every entity, else 0.",
			},
		),
		CacheKeysFlushed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_keys_flushed_total",
				Help:      "Dashboard cache keys invalidated after publishes.",
			},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Kafka events produced, by topic and status.",
			},
			[]string{"topic", "status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Status API requests by method, path and status code.",
			},
			[]string{"method", "path", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Status API request latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(
		m.SnapshotsRead,
		m.SnapshotsSkipped,
		m.CandidatesTotal,
		m.CandidatesDropped,
		m.RowsPublished,
		m.StageDuration,
		m.RunsTotal,
		m.QualityViolations,
		m.LastRunTimestamp,
		m.LastRunSuccessful,
		m.CacheKeysFlushed,
		m.EventsPublished,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

// SnapshotRead counts raw snapshots loaded for an entity.
func (m *Metrics) SnapshotRead(entity string, n int) {
	if m == nil {
		return
	}
	m.SnapshotsRead.WithLabelValues(entity).Add(float64(n))
}

// SnapshotSkipped counts a snapshot no flattener could read.
func (m *Metrics) SnapshotSkipped(entity, reason string) {
	if m == nil {
		return
	}
	m.SnapshotsSkipped.WithLabelValues(entity, reason).Inc()
}

// Candidates counts candidates produced and dropped while flattening.
func (m *Metrics) Candidates(entity string, produced, dropped int) {
	if m == nil {
		return
	}
	m.CandidatesTotal.WithLabelValues(entity).Add(float64(produced))
	m.CandidatesDropped.WithLabelValues(entity).Add(float64(dropped))
}

// Published counts rows committed to the structured store.
func (m *Metrics) Published(entity string, rows int) {
	if m == nil {
		return
	}
	m.RowsPublished.WithLabelValues(entity).Add(float64(rows))
}

// ObserveStage records how long one entity stage took.
func (m *Metrics) ObserveStage(entity, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(entity, stage).Observe(d.Seconds())
}

// RunFinished records the outcome of a whole run.
func (m *Metrics) RunFinished(outcome string, at time.Time) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	if outcome == "locked" {
		return
	}
	m.LastRunTimestamp.Set(float64(at.Unix()))
	if outcome == "success" {
		m.LastRunSuccessful.Set(1)
	} else {
		m.LastRunSuccessful.Set(0)
	}
}

// SetQualityViolations replaces the gauge with the latest counts per check.
func (m *Metrics) SetQualityViolations(byCheck map[string]int) {
	if m == nil {
		return
	}
	m.QualityViolations.Reset()
	for check, n := range byCheck {
		m.QualityViolations.WithLabelValues(check).Set(float64(n))
	}
}

// CacheFlushed counts dashboard cache keys removed after a run.
func (m *Metrics) CacheFlushed(n int) {
	if m == nil {
		return
	}
	m.CacheKeysFlushed.Add(float64(n))
}

// EventPublished counts run events sent to Kafka, labelled by outcome.
func (m *Metrics) EventPublished(topic string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(topic, status).Inc()
}

// ObserveRequest records one status API request.
func (m *Metrics) ObserveRequest(method, path string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
