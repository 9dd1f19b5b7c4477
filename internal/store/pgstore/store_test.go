package pgstore

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func testPostgresConfig() config.PostgresConfig {
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "engagement_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "engagement"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectAttempts: 1,
	}
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *Store {
	t.Helper()
	cfg := testPostgresConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(cfg))

	for _, table := range []string{"contacts", "channel_daily_stats", "engagement_heatmap", "campaigns", "daily_summary", "sync_state"} {
		_, err := db.DB.Exec("TRUNCATE " + table)
		require.NoError(t, err)
	}
	return New(db)
}

func TestUpsertQuery(t *testing.T) {
	q := heatmapTable.query()
	assert.True(t, strings.HasPrefix(q, "INSERT INTO engagement_heatmap (tenant_id, weekday, hour, channel, weekday_ordinal, ratio, engagement) VALUES ($1, $2, $3, $4, $5, $6, $7)"))
	assert.Contains(t, q, "ON CONFLICT (tenant_id, weekday, hour) DO UPDATE SET channel = EXCLUDED.channel")
	assert.NotContains(t, q, "hour = EXCLUDED.hour")

	assert.Equal(t, "SELECT tenant_id, date, total_sent, total_delivered, total_opened, total_clicked, unique_contacts, conversations, fallback_count FROM daily_summary ORDER BY tenant_id, date",
		summaryTable.selectAll())
}

func TestIntegrationUpsertIdempotent(t *testing.T) {
	s := skipIfNoPostgres(t)
	ctx := context.Background()
	day := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)

	rows := []model.ChannelDailyStat{{
		TenantID: "t", Date: day, Channel: "android", Account: "100274",
		Sent: 120, Delivered: 100, Opened: 40, Clicked: 15,
		ClickRate: 12.5, DeliveryRate: 83.33, OpenRate: 40,
	}}
	require.NoError(t, s.UpsertChannelDailyStats(ctx, rows))
	require.NoError(t, s.UpsertChannelDailyStats(ctx, rows))

	got, err := s.ChannelDailyStats(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rows[0], got[0])

	rows[0].Sent = 130
	require.NoError(t, s.UpsertChannelDailyStats(ctx, rows))
	got, err = s.ChannelDailyStats(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(130), got[0].Sent)
}

func TestIntegrationNullableColumns(t *testing.T) {
	s := skipIfNoPostgres(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertContacts(ctx, []model.Contact{
		{TenantID: "t", ContactID: "1", Name: sql.NullString{String: "Ana", Valid: true}},
	}))
	require.NoError(t, s.UpsertDailySummaries(ctx, []model.DailySummary{
		{TenantID: "t", Date: time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), TotalSent: 150},
	}))

	contacts, err := s.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.False(t, contacts[0].LastContact.Valid)
	assert.False(t, contacts[0].Channel.Valid)

	sums, err := s.DailySummaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.False(t, sums[0].UniqueContacts.Valid)
}
