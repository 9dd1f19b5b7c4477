// Package pgstore is the PostgreSQL structured store. Each entity batch is
// written in one transaction as INSERT ... ON CONFLICT DO UPDATE over every
// non-key column, which makes republishing idempotent.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/postgres"
)

// Store is the Postgres structured store. Every upsert runs in one transaction
// and overwrites all columns of a conflicting row.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Store over db. The schema must already be migrated.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "structured-store"),
	}
}

// tableDef describes one structured table and its upsert statement.
type tableDef struct {
	table   string
	key     []string
	columns []string
}

func (u tableDef) query() string {
	all := append(append([]string{}, u.key...), u.columns...)
	placeholders := make([]string, len(all))
	for i := range all {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := make([]string, len(u.columns))
	for i, c := range u.columns {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		u.table,
		strings.Join(all, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(u.key, ", "),
		strings.Join(sets, ", "),
	)
}

func (u tableDef) selectAll() string {
	all := append(append([]string{}, u.key...), u.columns...)
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(all, ", "), u.table, strings.Join(u.key, ", "))
}

var (
	contactsTable = tableDef{
		table:   "contacts",
		key:     []string{"tenant_id", "contact_id"},
		columns: []string{"name", "channel", "first_contact", "last_contact"},
	}
	dailyStatsTable = tableDef{
		table:   "channel_daily_stats",
		key:     []string{"tenant_id", "date", "channel", "account"},
		columns: []string{"sent", "delivered", "opened", "clicked", "click_rate", "delivery_rate", "open_rate"},
	}
	heatmapTable = tableDef{
		table:   "engagement_heatmap",
		key:     []string{"tenant_id", "weekday", "hour"},
		columns: []string{"channel", "weekday_ordinal", "ratio", "engagement"},
	}
	campaignsTable = tableDef{
		table: "campaigns",
		key:   []string{"tenant_id", "campaign_id"},
		columns: []string{
			"name", "channel", "account", "status",
			"sent", "delivered", "opened", "clicked", "bounced", "blocked", "spam", "unsubscribed", "converted",
			"start_date", "end_date",
			"click_rate", "delivery_rate", "open_rate", "conversion_rate",
		},
	}
	summaryTable = tableDef{
		table: "daily_summary",
		key:   []string{"tenant_id", "date"},
		columns: []string{
			"total_sent", "total_delivered", "total_opened", "total_clicked",
			"unique_contacts", "conversations", "fallback_count",
		},
	}
	syncTable = tableDef{
		table:   "sync_state",
		key:     []string{"tenant_id", "entity"},
		columns: []string{"last_sync_at", "records_synced", "status"},
	}
)

// upsert applies rows in a single transaction. A failure or cancellation
// before commit leaves the table untouched.
func upsert[T any](ctx context.Context, s *Store, tbl tableDef, rows []T, args func(T) []any) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, tbl.query())
		if err != nil {
			return fmt.Errorf("preparing %s upsert: %w", tbl.table, err)
		}
		defer stmt.Close()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, args(r)...); err != nil {
				return fmt.Errorf("upserting into %s: %w", tbl.table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("upsert committed", "table", tbl.table, "rows", len(rows))
	return nil
}

func query[T any](ctx context.Context, s *Store, tbl tableDef, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := s.db.DB.QueryContext(ctx, tbl.selectAll())
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", tbl.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", tbl.table, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpsertContacts writes contacts keyed by tenant and contact id.
func (s *Store) UpsertContacts(ctx context.Context, rows []model.Contact) error {
	return upsert(ctx, s, contactsTable, rows, func(c model.Contact) []any {
		return []any{c.TenantID, c.ContactID, c.Name, c.Channel, c.FirstContact, c.LastContact}
	})
}

// UpsertChannelDailyStats writes stats keyed by tenant, date, channel and account.
func (s *Store) UpsertChannelDailyStats(ctx context.Context, rows []model.ChannelDailyStat) error {
	return upsert(ctx, s, dailyStatsTable, rows, func(d model.ChannelDailyStat) []any {
		return []any{
			d.TenantID, d.Date, d.Channel, d.Account,
			d.Sent, d.Delivered, d.Opened, d.Clicked,
			d.ClickRate, d.DeliveryRate, d.OpenRate,
		}
	})
}

// UpsertHeatmap writes cells keyed by tenant, weekday and hour.
func (s *Store) UpsertHeatmap(ctx context.Context, rows []model.HeatmapCell) error {
	return upsert(ctx, s, heatmapTable, rows, func(h model.HeatmapCell) []any {
		return []any{h.TenantID, h.Weekday, h.Hour, h.Channel, h.WeekdayOrdinal, h.Ratio, h.Engagement}
	})
}

// UpsertCampaigns writes campaigns keyed by tenant and campaign id.
func (s *Store) UpsertCampaigns(ctx context.Context, rows []model.Campaign) error {
	return upsert(ctx, s, campaignsTable, rows, func(c model.Campaign) []any {
		return []any{
			c.TenantID, c.CampaignID,
			c.Name, c.Channel, c.Account, c.Status,
			c.Sent, c.Delivered, c.Opened, c.Clicked, c.Bounced, c.Blocked, c.Spam, c.Unsubscribed, c.Converted,
			c.StartDate, c.EndDate,
			c.ClickRate, c.DeliveryRate, c.OpenRate, c.ConversionRate,
		}
	})
}

// UpsertDailySummaries writes summaries keyed by tenant and date.
func (s *Store) UpsertDailySummaries(ctx context.Context, rows []model.DailySummary) error {
	return upsert(ctx, s, summaryTable, rows, func(d model.DailySummary) []any {
		return []any{
			d.TenantID, d.Date,
			d.TotalSent, d.TotalDelivered, d.TotalOpened, d.TotalClicked,
			d.UniqueContacts, d.Conversations, d.FallbackCount,
		}
	})
}

// RecordSync upserts the sync state of one tenant and entity.
func (s *Store) RecordSync(ctx context.Context, state model.SyncState) error {
	return upsert(ctx, s, syncTable, []model.SyncState{state}, func(st model.SyncState) []any {
		return []any{st.TenantID, st.Entity.String(), st.LastSyncAt, st.RecordsSynced, st.Status}
	})
}

// Contacts returns every published contact.
func (s *Store) Contacts(ctx context.Context) ([]model.Contact, error) {
	return query(ctx, s, contactsTable, func(rows *sql.Rows) (model.Contact, error) {
		var c model.Contact
		err := rows.Scan(&c.TenantID, &c.ContactID, &c.Name, &c.Channel, &c.FirstContact, &c.LastContact)
		c.FirstContact.V = model.Day(c.FirstContact.V)
		c.LastContact.V = model.Day(c.LastContact.V)
		return c, err
	})
}

// ChannelDailyStats returns every published daily stat.
func (s *Store) ChannelDailyStats(ctx context.Context) ([]model.ChannelDailyStat, error) {
	return query(ctx, s, dailyStatsTable, func(rows *sql.Rows) (model.ChannelDailyStat, error) {
		var d model.ChannelDailyStat
		err := rows.Scan(
			&d.TenantID, &d.Date, &d.Channel, &d.Account,
			&d.Sent, &d.Delivered, &d.Opened, &d.Clicked,
			&d.ClickRate, &d.DeliveryRate, &d.OpenRate,
		)
		d.Date = model.Day(d.Date)
		return d, err
	})
}

// Heatmap returns every published heatmap cell.
func (s *Store) Heatmap(ctx context.Context) ([]model.HeatmapCell, error) {
	return query(ctx, s, heatmapTable, func(rows *sql.Rows) (model.HeatmapCell, error) {
		var h model.HeatmapCell
		err := rows.Scan(&h.TenantID, &h.Weekday, &h.Hour, &h.Channel, &h.WeekdayOrdinal, &h.Ratio, &h.Engagement)
		return h, err
	})
}

// Campaigns returns every published campaign.
func (s *Store) Campaigns(ctx context.Context) ([]model.Campaign, error) {
	return query(ctx, s, campaignsTable, func(rows *sql.Rows) (model.Campaign, error) {
		var c model.Campaign
		err := rows.Scan(
			&c.TenantID, &c.CampaignID,
			&c.Name, &c.Channel, &c.Account, &c.Status,
			&c.Sent, &c.Delivered, &c.Opened, &c.Clicked, &c.Bounced, &c.Blocked, &c.Spam, &c.Unsubscribed, &c.Converted,
			&c.StartDate, &c.EndDate,
			&c.ClickRate, &c.DeliveryRate, &c.OpenRate, &c.ConversionRate,
		)
		c.StartDate.V = model.Day(c.StartDate.V)
		c.EndDate.V = model.Day(c.EndDate.V)
		return c, err
	})
}

// DailySummaries returns every published daily summary.
func (s *Store) DailySummaries(ctx context.Context) ([]model.DailySummary, error) {
	return query(ctx, s, summaryTable, func(rows *sql.Rows) (model.DailySummary, error) {
		var d model.DailySummary
		err := rows.Scan(
			&d.TenantID, &d.Date,
			&d.TotalSent, &d.TotalDelivered, &d.TotalOpened, &d.TotalClicked,
			&d.UniqueContacts, &d.Conversations, &d.FallbackCount,
		)
		d.Date = model.Day(d.Date)
		return d, err
	})
}

// SyncStates returns the recorded sync state rows.
func (s *Store) SyncStates(ctx context.Context) ([]model.SyncState, error) {
	return query(ctx, s, syncTable, func(rows *sql.Rows) (model.SyncState, error) {
		var st model.SyncState
		var entity string
		err := rows.Scan(&st.TenantID, &entity, &st.LastSyncAt, &st.RecordsSynced, &st.Status)
		st.Entity = model.EntityType(entity)
		st.LastSyncAt = st.LastSyncAt.UTC()
		return st, err
	})
}
