// Package publish writes resolved, derived records into the structured store.
//
// Every batch is applied in one transaction per entity and overwrites every
// column of rows whose natural key already exists, so republishing the same
// snapshot set leaves the store unchanged. Rows whose key is absent from a
// batch are never touched.
package publish

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
)

// Writer upserts one entity batch per call, atomically.
type Writer interface {
	UpsertContacts(ctx context.Context, rows []model.Contact) error
	UpsertChannelDailyStats(ctx context.Context, rows []model.ChannelDailyStat) error
	UpsertHeatmap(ctx context.Context, rows []model.HeatmapCell) error
	UpsertCampaigns(ctx context.Context, rows []model.Campaign) error
	UpsertDailySummaries(ctx context.Context, rows []model.DailySummary) error
}

// Reader returns every published row of an entity.
type Reader interface {
	Contacts(ctx context.Context) ([]model.Contact, error)
	ChannelDailyStats(ctx context.Context) ([]model.ChannelDailyStat, error)
	Heatmap(ctx context.Context) ([]model.HeatmapCell, error)
	Campaigns(ctx context.Context) ([]model.Campaign, error)
	DailySummaries(ctx context.Context) ([]model.DailySummary, error)
}

// Store is the structured store the transform publishes into.
type Store interface {
	Writer
	Reader
	RecordSync(ctx context.Context, state model.SyncState) error
	SyncStates(ctx context.Context) ([]model.SyncState, error)
}

// Publisher writes resolved rows for one entity at a time and records the sync
// state of every tenant in the batch.
type Publisher struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewPublisher creates a Publisher over store.
func NewPublisher(store Store) *Publisher {
	return &Publisher{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "publisher"),
	}
}

// Contacts upserts contact rows and returns how many were written.
func (p *Publisher) Contacts(ctx context.Context, rows []model.Contact) (int, error) {
	return publish(ctx, p, model.EntityContacts, rows, p.store.UpsertContacts)
}

// ChannelDailyStats upserts daily stat rows and returns how many were written.
func (p *Publisher) ChannelDailyStats(ctx context.Context, rows []model.ChannelDailyStat) (int, error) {
	return publish(ctx, p, model.EntityChannelDailyStats, rows, p.store.UpsertChannelDailyStats)
}

// Heatmap upserts heatmap cells and returns how many were written.
func (p *Publisher) Heatmap(ctx context.Context, rows []model.HeatmapCell) (int, error) {
	return publish(ctx, p, model.EntityHeatmap, rows, p.store.UpsertHeatmap)
}

// Campaigns upserts campaign rows and returns how many were written.
func (p *Publisher) Campaigns(ctx context.Context, rows []model.Campaign) (int, error) {
	return publish(ctx, p, model.EntityCampaigns, rows, p.store.UpsertCampaigns)
}

// DailySummaries rebuilds the daily summary from the channel daily stats
// currently in the store. It must run after the channel daily stats publish
// has committed.
func (p *Publisher) DailySummaries(ctx context.Context) (int, error) {
	stats, err := p.store.ChannelDailyStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: reading channel daily stats: %w", apperrors.ErrStructuredStore, err)
	}
	return publish(ctx, p, model.EntityDailySummary, SummarizeDaily(stats), p.store.UpsertDailySummaries)
}

func publish[T model.Record](ctx context.Context, p *Publisher, entity model.EntityType, rows []T, upsert func(context.Context, []T) error) (int, error) {
	tenants := tenantCounts(rows)
	if err := upsert(ctx, rows); err != nil {
		p.recordSync(ctx, entity, tenants, model.ErrorStatus(err))
		return 0, fmt.Errorf("%w: upserting %s: %w", apperrors.ErrStructuredStore, entity, err)
	}
	p.recordSync(ctx, entity, tenants, model.StatusSuccess)

	p.logger.Info("batch published", "entity", entity, "rows", len(rows), "tenants", len(tenants))
	return len(rows), nil
}

// recordSync is best effort; a failure to write sync state never fails a
// publish that already committed.
func (p *Publisher) recordSync(ctx context.Context, entity model.EntityType, tenants map[string]int, status string) {
	at := p.now().UTC()
	for tenant, n := range tenants {
		if status != model.StatusSuccess {
			n = 0
		}
		state := model.SyncState{
			TenantID:      tenant,
			Entity:        entity,
			LastSyncAt:    at,
			RecordsSynced: n,
			Status:        status,
		}
		if err := p.store.RecordSync(context.WithoutCancel(ctx), state); err != nil {
			p.logger.Warn("recording sync state failed", "entity", entity, "tenant", tenant, "error", err)
		}
	}
}

// tenantCounts relies on the tenant leading every natural key.
func tenantCounts[T model.Record](rows []T) map[string]int {
	out := make(map[string]int)
	for _, r := range rows {
		out[r.NaturalKey().Parts()[0]]++
	}
	return out
}

// SummarizeDaily sums channel daily stats over channels and accounts per
// tenant and day. The output is sorted by natural key.
func SummarizeDaily(stats []model.ChannelDailyStat) []model.DailySummary {
	byKey := make(map[model.Key]*model.DailySummary)
	for _, s := range stats {
		day := model.Day(s.Date)
		k := model.NewKey(s.TenantID, model.FormatDay(day))
		sum, ok := byKey[k]
		if !ok {
			sum = &model.DailySummary{TenantID: s.TenantID, Date: day}
			byKey[k] = sum
		}
		sum.TotalSent += s.Sent
		sum.TotalDelivered += s.Delivered
		sum.TotalOpened += s.Opened
		sum.TotalClicked += s.Clicked
	}

	out := make([]model.DailySummary, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b model.DailySummary) int {
		return cmp.Compare(a.NaturalKey(), b.NaturalKey())
	})
	return out
}
