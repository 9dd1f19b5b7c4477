package publish

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/store/memory"
	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)

func TestPublishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := NewPublisher(store)

	rows := []model.Campaign{
		{TenantID: "t", CampaignID: "a", Sent: 10, Name: sql.NullString{String: "A", Valid: true}},
		{TenantID: "t", CampaignID: "b", Sent: 20},
	}
	n, err := p.Campaigns(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	first, err := store.Campaigns(ctx)
	require.NoError(t, err)

	_, err = p.Campaigns(ctx, rows)
	require.NoError(t, err)
	second, err := store.Campaigns(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPublishOverwritesAndLeavesAbsentRows(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := NewPublisher(store)

	_, err := p.Campaigns(ctx, []model.Campaign{
		{TenantID: "t", CampaignID: "a", Sent: 10, Name: sql.NullString{String: "A", Valid: true}},
		{TenantID: "t", CampaignID: "b", Sent: 20},
	})
	require.NoError(t, err)

	_, err = p.Campaigns(ctx, []model.Campaign{{TenantID: "t", CampaignID: "a", Sent: 11}})
	require.NoError(t, err)

	got, err := store.Campaigns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(11), got[0].Sent)
	assert.False(t, got[0].Name.Valid, "every column is overwritten")
	assert.Equal(t, int64(20), got[1].Sent)
}

func TestSummarizeDaily(t *testing.T) {
	stats := []model.ChannelDailyStat{
		{TenantID: "t", Date: day, Channel: "android", Account: "1", Sent: 120, Delivered: 100, Opened: 40, Clicked: 15},
		{TenantID: "t", Date: day, Channel: "ios", Account: "1", Sent: 30, Delivered: 25, Opened: 10, Clicked: 5},
		{TenantID: "t", Date: day.AddDate(0, 0, -1), Channel: "ios", Account: "2", Sent: 7},
		{TenantID: "u", Date: day, Channel: "ios", Account: "1", Sent: 1},
	}

	got := SummarizeDaily(stats)
	require.Len(t, got, 3)
	assert.Equal(t, day.AddDate(0, 0, -1), got[0].Date)
	assert.Equal(t, int64(7), got[0].TotalSent)

	assert.Equal(t, "t", got[1].TenantID)
	assert.Equal(t, int64(150), got[1].TotalSent)
	assert.Equal(t, int64(125), got[1].TotalDelivered)
	assert.Equal(t, int64(50), got[1].TotalOpened)
	assert.Equal(t, int64(20), got[1].TotalClicked)
	assert.False(t, got[1].UniqueContacts.Valid)
	assert.False(t, got[1].Conversations.Valid)
	assert.False(t, got[1].FallbackCount.Valid)

	assert.Equal(t, "u", got[2].TenantID)
	assert.Empty(t, SummarizeDaily(nil))
}

func TestDailySummariesReadsStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := NewPublisher(store)

	_, err := p.ChannelDailyStats(ctx, []model.ChannelDailyStat{
		{TenantID: "t", Date: day, Channel: "android", Account: "1", Sent: 120},
	})
	require.NoError(t, err)
	_, err = p.ChannelDailyStats(ctx, []model.ChannelDailyStat{
		{TenantID: "t", Date: day, Channel: "ios", Account: "1", Sent: 30},
	})
	require.NoError(t, err)

	n, err := p.DailySummaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sums, err := store.DailySummaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, int64(150), sums[0].TotalSent)
}

type failingStore struct {
	*memory.Store
}

func (failingStore) UpsertHeatmap(context.Context, []model.HeatmapCell) error {
	return errors.New("connection reset")
}

func TestPublishRecordsSyncState(t *testing.T) {
	ctx := context.Background()
	store := failingStore{memory.New()}
	p := NewPublisher(store)
	p.now = func() time.Time { return day.Add(3 * time.Hour) }

	_, err := p.Contacts(ctx, []model.Contact{
		{TenantID: "t", ContactID: "1"},
		{TenantID: "t", ContactID: "2"},
		{TenantID: "u", ContactID: "1"},
	})
	require.NoError(t, err)

	_, err = p.Heatmap(ctx, []model.HeatmapCell{{TenantID: "t", Weekday: "monday", Hour: 8}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStructuredStore)
	assert.True(t, apperrors.IsFatal(err))

	states, err := store.SyncStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 3)

	byKey := map[string]model.SyncState{}
	for _, s := range states {
		byKey[s.TenantID+"/"+s.Entity.String()] = s
	}
	assert.Equal(t, 2, byKey["t/contacts"].RecordsSynced)
	assert.Equal(t, model.StatusSuccess, byKey["t/contacts"].Status)
	assert.Equal(t, 1, byKey["u/contacts"].RecordsSynced)
	assert.Equal(t, day.Add(3*time.Hour), byKey["u/contacts"].LastSyncAt)
	assert.Equal(t, "error: connection reset", byKey["t/engagement_heatmap"].Status)
	assert.Zero(t, byKey["t/engagement_heatmap"].RecordsSynced)
}
