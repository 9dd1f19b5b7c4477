// Package notify tells the outside world about finished transform runs:
// a run event and the quality report go to Kafka, and the dashboard cache
// entries of every published entity are invalidated in Redis.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/resilience"
)

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// RunCompleted is the event written to the transform-completed topic.
type RunCompleted struct {
	RunID      string                  `json:"run_id"`
	Status     string                  `json:"status"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Entities   []pipeline.EntityResult `json:"entities"`
	Published  []model.EntityType      `json:"published"`
	Quality    *QualitySummary         `json:"quality,omitempty"`
}

// QualitySummary is the compact form of a quality report carried in run events.
type QualitySummary struct {
	Passed          bool           `json:"passed"`
	TotalViolations int            `json:"total_violations"`
	ByCheck         map[string]int `json:"by_check"`
}

// EventNotifier publishes run and quality events.
type EventNotifier struct {
	publisher    Publisher
	runTopic     string
	qualityTopic string
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewEventNotifier builds a notifier writing to runTopic and, when it is
// not empty, the full quality report to qualityTopic.
func NewEventNotifier(p Publisher, runTopic, qualityTopic string, m *metrics.Metrics) *EventNotifier {
	return &EventNotifier{
		publisher:    p,
		runTopic:     runTopic,
		qualityTopic: qualityTopic,
		metrics:      m,
		logger:       slog.Default().With("component", "event-notifier"),
	}
}

// Notify publishes the run event and, when a quality topic is set, the full
// quality report.
func (n *EventNotifier) Notify(ctx context.Context, s *pipeline.Summary) error {
	event := RunCompleted{
		RunID:      s.RunID,
		Status:     "success",
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Entities:   s.Entities,
		Published:  s.Published(),
	}
	if !s.Succeeded() {
		event.Status = "failed"
	}
	if s.Quality != nil {
		event.Quality = &QualitySummary{
			Passed:          s.Quality.Passed,
			TotalViolations: s.Quality.TotalViolations,
			ByCheck:         s.Quality.CountByCheck(),
		}
	}

	err := n.publisher.Publish(ctx, n.runTopic, s.RunID, event)
	n.metrics.EventPublished(n.runTopic, err)
	if err != nil {
		return fmt.Errorf("publishing run event: %w", err)
	}

	if n.qualityTopic != "" && s.Quality != nil {
		err := n.publisher.Publish(ctx, n.qualityTopic, s.RunID, s.Quality)
		n.metrics.EventPublished(n.qualityTopic, err)
		if err != nil {
			return fmt.Errorf("publishing quality report: %w", err)
		}
	}
	n.logger.Debug("run events published", "run_id", s.RunID, "status", event.Status)
	return nil
}

// Flusher is satisfied by redis.Client.
type Flusher interface {
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// CacheInvalidator drops cached dashboard entries of every entity a run
// published. pattern is a fmt template taking the entity name, for example
// "dashboard:%s:*".
type CacheInvalidator struct {
	flusher Flusher
	pattern string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCacheInvalidator creates an invalidator. m may be nil.
func NewCacheInvalidator(f Flusher, pattern string, m *metrics.Metrics) *CacheInvalidator {
	return &CacheInvalidator{
		flusher: f,
		pattern: pattern,
		metrics: m,
		logger:  slog.Default().With("component", "cache-invalidator"),
	}
}

// Notify flushes the keys of every entity that committed rows. Failures for
// one entity do not stop the others.
func (c *CacheInvalidator) Notify(ctx context.Context, s *pipeline.Summary) error {
	var errs []error
	for _, entity := range s.Published() {
		pattern := fmt.Sprintf(c.pattern, entity)
		n, err := c.flusher.FlushByPattern(ctx, pattern)
		c.metrics.CacheFlushed(int(n))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalidating %s: %w", entity, err))
			continue
		}
		c.logger.Debug("cache invalidated", "entity", entity, "pattern", pattern, "keys", n)
	}
	return errors.Join(errs...)
}

// Guarded wraps a notifier in a breaker so an unreachable sink is skipped
// for a cooldown instead of being retried on every run.
type Guarded struct {
	next    pipeline.Notifier
	breaker *resilience.Breaker
}

// Guard wraps next with b.
func Guard(next pipeline.Notifier, b *resilience.Breaker) *Guarded {
	return &Guarded{next: next, breaker: b}
}

func (g *Guarded) Notify(ctx context.Context, s *pipeline.Summary) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.next.Notify(ctx, s)
	})
}
