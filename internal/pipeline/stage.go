package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/derive"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/flatten"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/resolve"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// entityStage wires the per-entity pieces of load → flatten → resolve →
// derive → publish.
type entityStage[T model.Record] struct {
	entity   model.EntityType
	table    string
	registry *flatten.Registry[T]
	order    resolve.Compare[T]
	derive   func(T) T
	publish  func(context.Context, []T) (int, error)
}

func runStage[T model.Record](ctx context.Context, r *Runner, st entityStage[T]) EntityResult {
	res := EntityResult{Entity: st.entity}
	start := time.Now()
	ctx, span := tracing.StartStage(ctx, st.entity.String())
	log := logger.FromContext(ctx).With("component", "pipeline", "entity", st.entity)

	err := func() error {
		raws, err := r.load(ctx, st.entity, st.table)
		if err != nil {
			return apperrors.NewStage(st.entity.String(), apperrors.StageLoad, err)
		}
		res.Snapshots = len(raws)
		r.metrics.SnapshotRead(st.entity.String(), len(raws))

		flattenStart := time.Now()
		resolved, err := flattenAndResolve(ctx, r, st, raws, &res)
		r.metrics.ObserveStage(st.entity.String(), apperrors.StageFlatten, time.Since(flattenStart))
		if err != nil {
			return apperrors.NewStage(st.entity.String(), apperrors.StageFlatten, err)
		}

		rows := resolve.Records(resolved)
		if st.derive != nil {
			rows = derive.All(rows, st.derive)
		}

		publishStart := time.Now()
		n, err := st.publish(ctx, rows)
		r.metrics.ObserveStage(st.entity.String(), apperrors.StagePublish, time.Since(publishStart))
		if err != nil {
			return apperrors.NewStage(st.entity.String(), apperrors.StagePublish, err)
		}
		res.Rows = n
		r.metrics.Published(st.entity.String(), n)
		return nil
	}()

	res.Duration = time.Since(start)
	span.SetAttr("snapshots", res.Snapshots)
	span.SetAttr("rows", res.Rows)
	span.End(err)
	if err != nil {
		res.fail(err)
		log.Error("entity stage failed", "stage", apperrors.StageOf(err), "error", err)
		return res
	}
	log.Info("entity stage completed",
		"snapshots", res.Snapshots,
		"skipped", res.Skipped,
		"candidates", res.Candidates,
		"dropped", res.Dropped,
		"rows", res.Rows,
		"duration", res.Duration,
	)
	return res
}

// flattenAndResolve flattens snapshots concurrently, resolving each one on
// its own, then merges the per-snapshot winners.
func flattenAndResolve[T model.Record](ctx context.Context, r *Runner, st entityStage[T], raws []snapshot.Raw, res *EntityResult) ([]model.Candidate[T], error) {
	var skipped, candidates, dropped atomic.Int64
	parts := make([][]model.Candidate[T], len(raws))
	log := logger.FromContext(ctx).With("component", "pipeline", "entity", st.entity)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, raw := range raws {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f := st.registry.Find(raw.Endpoint)
			if f == nil {
				skipped.Add(1)
				r.metrics.SnapshotSkipped(st.entity.String(), "unsupported")
				return nil
			}
			seq, err := f.Flatten(raw)
			if err != nil {
				if errors.Is(err, apperrors.ErrShapeMismatch) {
					skipped.Add(1)
					r.metrics.SnapshotSkipped(st.entity.String(), "shape_mismatch")
					log.Warn("snapshot skipped", "snapshot_id", raw.ID, "endpoint", raw.Endpoint, "error", err)
					return nil
				}
				return err
			}

			var cands []model.Candidate[T]
			for c, err := range seq {
				if err != nil {
					if errors.Is(err, apperrors.ErrMissingKey) {
						dropped.Add(1)
						log.Debug("candidate dropped", "error", err)
						continue
					}
					return err
				}
				cands = append(cands, c)
			}
			candidates.Add(int64(len(cands)))
			parts[i] = resolve.Latest(cands, st.order)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("flattening %s: %w", st.entity, err)
	}

	res.Skipped = int(skipped.Load())
	res.Candidates = int(candidates.Load())
	res.Dropped = int(dropped.Load())
	r.metrics.Candidates(st.entity.String(), res.Candidates, res.Dropped)

	return resolve.Merge(st.order, parts...), nil
}

// load reads a raw table, retrying transient failures.
func (r *Runner) load(ctx context.Context, entity model.EntityType, table string) ([]snapshot.Raw, error) {
	var raws []snapshot.Raw
	start := time.Now()
	err := resilience.Retry(ctx, "snapshot-load", resilience.RetryConfig{
		MaxAttempts:  r.cfg.LoadAttempts,
		InitialDelay: 200 * time.Millisecond,
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	}, func() error {
		var err error
		raws, err = r.source.Load(ctx, table)
		return err
	})
	r.metrics.ObserveStage(entity.String(), apperrors.StageLoad, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: loading %s: %w", apperrors.ErrSnapshotStore, table, err)
	}
	return raws, nil
}
