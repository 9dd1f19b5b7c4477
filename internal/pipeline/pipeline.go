// Package pipeline runs the transform: one stage per entity, each loading
// its raw snapshots and publishing resolved rows, followed by the daily
// summary aggregate and the Quality Gate.
//
// Entity stages run concurrently and fail independently; a failed stage
// rolls back only its own batch. The daily summary stage depends on the
// channel daily stats stage and is skipped when that stage fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/derive"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/flatten"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/publish"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/quality"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/resolve"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/tracing"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Tables names the raw snapshot table of each source.
type Tables struct {
	Contacts  string
	PushStats string
	Campaigns string
}

// Config controls a Runner. Zero Workers and LoadAttempts take defaults.
type Config struct {
	Flatten  flatten.Options
	Tables   Tables
	Entities []model.EntityType
	Workers  int
	// LoadAttempts bounds retries of a failing snapshot load.
	LoadAttempts int
	// Tracing logs the span tree of every run.
	Tracing bool
}

// ReportSaver persists quality reports.
type ReportSaver interface {
	Save(ctx context.Context, report *quality.Report) error
}

// Notifier is told about every finished run.
type Notifier interface {
	Notify(ctx context.Context, summary *Summary) error
}

// Option configures optional Runner collaborators.
type Option func(*Runner)

func WithGate(g *quality.Gate) Option { return func(r *Runner) { r.gate = g } }

func WithReportSaver(s ReportSaver) Option { return func(r *Runner) { r.reports = s } }

func WithLocker(l Locker) Option { return func(r *Runner) { r.locker = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithNotifiers adds notifiers, called in order after every run.
func WithNotifiers(n ...Notifier) Option {
	return func(r *Runner) { r.notifiers = append(r.notifiers, n...) }
}

// Runner executes transform runs. It is safe for concurrent use, though the
// lock keeps runs from overlapping when one is configured.
type Runner struct {
	cfg       Config
	source    snapshot.Source
	publisher *publish.Publisher
	gate      *quality.Gate
	reports   ReportSaver
	locker    Locker
	notifiers []Notifier
	metrics   *metrics.Metrics

	contacts   *flatten.Registry[model.Contact]
	dailyStats *flatten.Registry[model.ChannelDailyStat]
	heatmap    *flatten.Registry[model.HeatmapCell]
	campaigns  *flatten.Registry[model.Campaign]

	mu   sync.Mutex
	last *Summary
}

// New creates a Runner reading from source and publishing into store.
func New(cfg Config, source snapshot.Source, store publish.Store, opts ...Option) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.LoadAttempts <= 0 {
		cfg.LoadAttempts = 3
	}
	r := &Runner{
		cfg:        cfg,
		source:     source,
		publisher:  publish.NewPublisher(store),
		contacts:   flatten.NewRegistry[model.Contact](flatten.Contacts{Options: cfg.Flatten}),
		dailyStats: flatten.NewRegistry[model.ChannelDailyStat](flatten.ChannelDailyStats{Options: cfg.Flatten}),
		heatmap:    flatten.NewRegistry[model.HeatmapCell](flatten.Heatmap{Options: cfg.Flatten}),
		campaigns:  flatten.NewRegistry[model.Campaign](flatten.Campaigns{Options: cfg.Flatten}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Last returns the summary of the most recent finished run, or nil.
func (r *Runner) Last() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run executes one transform over entities, or the configured entities when
// none are given, or every entity when none are configured. The returned
// error joins the fatal stage errors; the summary is returned either way
// unless the run lock could not be taken.
func (r *Runner) Run(ctx context.Context, entities ...model.EntityType) (*Summary, error) {
	entities = r.selectEntities(entities)
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "pipeline")

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx)
		if err != nil {
			if errors.Is(err, apperrors.ErrLockHeld) {
				r.metrics.RunFinished("locked", time.Now())
				log.Warn("run skipped, lock held elsewhere")
			}
			return nil, fmt.Errorf("acquiring run lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("releasing run lock failed", "error", err)
			}
		}()
	}

	summary := &Summary{RunID: runID, StartedAt: time.Now().UTC()}
	ctx, root := tracing.StartRun(ctx, "transform", runID)
	log.Info("run started", "entities", entities)

	summary.Entities = r.runEntities(ctx, entities)

	if r.gate != nil {
		r.runQuality(ctx, summary)
	}

	summary.FinishedAt = time.Now().UTC()
	runErr := summary.Err()
	root.End(runErr)
	if r.cfg.Tracing {
		root.Log(log)
	}

	outcome := "success"
	if runErr != nil {
		outcome = "failed"
	}
	r.metrics.RunFinished(outcome, summary.FinishedAt)
	log.Info("run finished",
		"outcome", outcome,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
		"published", summary.Published(),
	)

	r.notify(ctx, summary)

	r.mu.Lock()
	r.last = summary
	r.mu.Unlock()
	return summary, runErr
}

func (r *Runner) selectEntities(requested []model.EntityType) []model.EntityType {
	if len(requested) == 0 {
		requested = r.cfg.Entities
	}
	if len(requested) == 0 {
		requested = append(slices.Clone(model.BaseEntities), model.EntityDailySummary)
	}
	out := make([]model.EntityType, 0, len(requested))
	for _, e := range requested {
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}

// runEntities runs every base entity concurrently. The daily summary runs
// on the channel daily stats goroutine, after its publish has returned.
func (r *Runner) runEntities(ctx context.Context, entities []model.EntityType) []EntityResult {
	results := make(map[model.EntityType]EntityResult, len(entities))
	var mu sync.Mutex
	record := func(res EntityResult) {
		mu.Lock()
		results[res.Entity] = res
		mu.Unlock()
	}

	wantSummary := slices.Contains(entities, model.EntityDailySummary)
	var g errgroup.Group
	for _, entity := range entities {
		switch entity {
		case model.EntityDailySummary:
			if !slices.Contains(entities, model.EntityChannelDailyStats) {
				g.Go(func() error {
					record(r.runSummary(ctx, nil))
					return nil
				})
			}
		case model.EntityChannelDailyStats:
			g.Go(func() error {
				res := r.runEntity(ctx, entity)
				record(res)
				if wantSummary {
					record(r.runSummary(ctx, res.Err))
				}
				return nil
			})
		default:
			g.Go(func() error {
				record(r.runEntity(ctx, entity))
				return nil
			})
		}
	}
	g.Wait()

	out := make([]EntityResult, 0, len(entities))
	for _, e := range entities {
		if res, ok := results[e]; ok {
			out = append(out, res)
		}
	}
	return out
}

func (r *Runner) runEntity(ctx context.Context, entity model.EntityType) EntityResult {
	switch entity {
	case model.EntityContacts:
		return runStage(ctx, r, entityStage[model.Contact]{
			entity:   entity,
			table:    r.cfg.Tables.Contacts,
			registry: r.contacts,
			order:    resolve.ContactOrder,
			publish:  r.publisher.Contacts,
		})
	case model.EntityChannelDailyStats:
		return runStage(ctx, r, entityStage[model.ChannelDailyStat]{
			entity:   entity,
			table:    r.cfg.Tables.PushStats,
			registry: r.dailyStats,
			order:    resolve.ByRecency[model.ChannelDailyStat],
			derive:   derive.ChannelDailyStat,
			publish:  r.publisher.ChannelDailyStats,
		})
	case model.EntityHeatmap:
		return runStage(ctx, r, entityStage[model.HeatmapCell]{
			entity:   entity,
			table:    r.cfg.Tables.PushStats,
			registry: r.heatmap,
			order:    resolve.ByRecency[model.HeatmapCell],
			derive:   derive.HeatmapCell,
			publish:  r.publisher.Heatmap,
		})
	case model.EntityCampaigns:
		return runStage(ctx, r, entityStage[model.Campaign]{
			entity:   entity,
			table:    r.cfg.Tables.Campaigns,
			registry: r.campaigns,
			order:    resolve.ByRecency[model.Campaign],
			derive:   derive.Campaign,
			publish:  r.publisher.Campaigns,
		})
	}
	res := EntityResult{Entity: entity}
	res.fail(apperrors.Stagef(entity.String(), apperrors.StageLoad, apperrors.ErrUnknownEntity, "%q", entity))
	return res
}

// runSummary rebuilds the daily summary. upstream is the channel daily stats
// stage error of this run, if that stage ran.
func (r *Runner) runSummary(ctx context.Context, upstream error) EntityResult {
	entity := model.EntityDailySummary
	res := EntityResult{Entity: entity}
	log := logger.FromContext(ctx).With("component", "pipeline", "entity", entity)

	if upstream != nil {
		res.fail(apperrors.Stagef(entity.String(), apperrors.StageAggregate, apperrors.ErrDependencyFailed,
			"%s did not commit", model.EntityChannelDailyStats))
		log.Warn("aggregate skipped", "error", res.Err)
		return res
	}

	start := time.Now()
	ctx, span := tracing.StartStage(ctx, entity.String())
	n, err := r.publisher.DailySummaries(ctx)
	res.Duration = time.Since(start)
	r.metrics.ObserveStage(entity.String(), apperrors.StageAggregate, res.Duration)
	span.SetAttr("rows", n)
	span.End(err)
	if err != nil {
		res.fail(apperrors.NewStage(entity.String(), apperrors.StageAggregate, err))
		log.Error("aggregate failed", "error", err)
		return res
	}
	res.Rows = n
	r.metrics.Published(entity.String(), n)
	log.Info("aggregate completed", "rows", n, "duration", res.Duration)
	return res
}

func (r *Runner) runQuality(ctx context.Context, summary *Summary) {
	ctx, span := tracing.StartStage(ctx, apperrors.StageQuality)
	report, err := r.gate.Run(ctx, summary.RunID)
	span.End(err)
	if err != nil {
		summary.QualityErr = apperrors.NewStage("quality", apperrors.StageQuality, err)
		summary.QualityError = summary.QualityErr.Error()
		return
	}
	summary.Quality = report
	r.metrics.SetQualityViolations(report.CountByCheck())

	if r.reports != nil {
		if err := r.reports.Save(ctx, report); err != nil {
			logger.FromContext(ctx).Warn("saving quality report failed", "error", err)
		}
	}
}

func (r *Runner) notify(ctx context.Context, summary *Summary) {
	for _, n := range r.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			logger.FromContext(ctx).Warn("run notification failed", "error", err)
		}
	}
}
