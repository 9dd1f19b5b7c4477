// Package memory is a map-backed structured store used for dry runs and
// tests. It has the same upsert semantics as the Postgres store.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
)

type table[T model.Record] map[model.Key]T

func (t table[T]) upsert(rows []T) {
	for _, r := range rows {
		t[r.NaturalKey()] = r
	}
}

func (t table[T]) rows() []T {
	keys := make([]model.Key, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]T, len(keys))
	for i, k := range keys {
		out[i] = t[k]
	}
	return out
}

// Store keeps published rows in memory. Each upsert batch is applied under one
// lock, so readers never see half a batch.
type Store struct {
	mu        sync.RWMutex
	contacts  table[model.Contact]
	daily     table[model.ChannelDailyStat]
	heatmap   table[model.HeatmapCell]
	campaigns table[model.Campaign]
	summaries table[model.DailySummary]
	syncs     map[model.Key]model.SyncState
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		contacts:  make(table[model.Contact]),
		daily:     make(table[model.ChannelDailyStat]),
		heatmap:   make(table[model.HeatmapCell]),
		campaigns: make(table[model.Campaign]),
		summaries: make(table[model.DailySummary]),
		syncs:     make(map[model.Key]model.SyncState),
	}
}

// apply runs fn under the write lock unless ctx is already done, in which
// case nothing is written.
func (s *Store) apply(ctx context.Context, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

func (s *Store) UpsertContacts(ctx context.Context, rows []model.Contact) error {
	return s.apply(ctx, func() { s.contacts.upsert(rows) })
}

func (s *Store) UpsertChannelDailyStats(ctx context.Context, rows []model.ChannelDailyStat) error {
	return s.apply(ctx, func() { s.daily.upsert(rows) })
}

func (s *Store) UpsertHeatmap(ctx context.Context, rows []model.HeatmapCell) error {
	return s.apply(ctx, func() { s.heatmap.upsert(rows) })
}

func (s *Store) UpsertCampaigns(ctx context.Context, rows []model.Campaign) error {
	return s.apply(ctx, func() { s.campaigns.upsert(rows) })
}

func (s *Store) UpsertDailySummaries(ctx context.Context, rows []model.DailySummary) error {
	return s.apply(ctx, func() { s.summaries.upsert(rows) })
}

func (s *Store) RecordSync(ctx context.Context, state model.SyncState) error {
	return s.apply(ctx, func() {
		s.syncs[model.NewKey(state.TenantID, state.Entity.String())] = state
	})
}

func (s *Store) Contacts(context.Context) ([]model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contacts.rows(), nil
}

func (s *Store) ChannelDailyStats(context.Context) ([]model.ChannelDailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.daily.rows(), nil
}

func (s *Store) Heatmap(context.Context) ([]model.HeatmapCell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heatmap.rows(), nil
}

func (s *Store) Campaigns(context.Context) ([]model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.campaigns.rows(), nil
}

func (s *Store) DailySummaries(context.Context) ([]model.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries.rows(), nil
}

func (s *Store) SyncStates(context.Context) ([]model.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]model.Key, 0, len(s.syncs))
	for k := range s.syncs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]model.SyncState, len(keys))
	for i, k := range keys {
		out[i] = s.syncs[k]
	}
	return out, nil
}
