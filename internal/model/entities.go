package model

import (
	"database/sql"
	"strconv"
	"time"
	"unicode/utf8"
)

// Contact is one chat contact per tenant.
type Contact struct {
	TenantID     string
	ContactID    string
	Name         sql.NullString
	Channel      sql.NullString
	FirstContact sql.Null[time.Time]
	LastContact  sql.Null[time.Time]
}

func (Contact) Entity() EntityType { return EntityContacts }

func (c Contact) NaturalKey() Key {
	return NewKey(c.TenantID, c.ContactID)
}

// ChannelDailyStat holds the delivery funnel of one channel and account for
// one day.
type ChannelDailyStat struct {
	TenantID  string
	Date      time.Time
	Channel   string
	Account   string
	Sent      int64
	Delivered int64
	Opened    int64
	Clicked   int64

	ClickRate    float64
	DeliveryRate float64
	OpenRate     float64
}

func (ChannelDailyStat) Entity() EntityType { return EntityChannelDailyStats }

func (s ChannelDailyStat) NaturalKey() Key {
	return NewKey(s.TenantID, FormatDay(s.Date), s.Channel, s.Account)
}

// HeatmapCell is the engagement of one weekday/hour slot. Ratio is the
// source fraction; Engagement is the same value as a percentage.
type HeatmapCell struct {
	TenantID       string
	Channel        string
	Weekday        string
	Hour           int
	WeekdayOrdinal int
	Ratio          float64

	Engagement float64
}

func (HeatmapCell) Entity() EntityType { return EntityHeatmap }

func (h HeatmapCell) NaturalKey() Key {
	return NewKey(h.TenantID, h.Weekday, strconv.Itoa(h.Hour))
}

// Campaign aggregates the per-status counters of one campaign.
type Campaign struct {
	TenantID     string
	CampaignID   string
	Name         sql.NullString
	Channel      string
	Account      string
	Status       sql.NullString
	Sent         int64
	Delivered    int64
	Opened       int64
	Clicked      int64
	Bounced      int64
	Blocked      int64
	Spam         int64
	Unsubscribed int64
	Converted    int64
	StartDate    sql.Null[time.Time]
	EndDate      sql.Null[time.Time]

	ClickRate      float64
	DeliveryRate   float64
	OpenRate       float64
	ConversionRate float64
}

func (Campaign) Entity() EntityType { return EntityCampaigns }

func (c Campaign) NaturalKey() Key {
	return NewKey(c.TenantID, c.CampaignID)
}

// DailySummary is the cross-channel total for one tenant and day, computed
// from published ChannelDailyStat rows only.
//
// UniqueContacts, Conversations and FallbackCount have no upstream source
// yet and are published as NULL (known-absent) rather than zero.
type DailySummary struct {
	TenantID       string
	Date           time.Time
	TotalSent      int64
	TotalDelivered int64
	TotalOpened    int64
	TotalClicked   int64
	UniqueContacts sql.NullInt64
	Conversations  sql.NullInt64
	FallbackCount  sql.NullInt64
}

func (DailySummary) Entity() EntityType { return EntityDailySummary }

func (d DailySummary) NaturalKey() Key {
	return NewKey(d.TenantID, FormatDay(d.Date))
}

// SyncState records the outcome of the latest publish of an entity for a
// tenant.
type SyncState struct {
	TenantID      string
	Entity        EntityType
	LastSyncAt    time.Time
	RecordsSynced int
	Status        string
}

const maxStatusLen = 200

// ErrorStatus formats a failed sync status, truncated to the column width.
func ErrorStatus(err error) string {
	s := "error: " + err.Error()
	if len(s) <= maxStatusLen {
		return s
	}
	cut := maxStatusLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// StatusSuccess is the sync status of a publish that committed.
const StatusSuccess = "success"
