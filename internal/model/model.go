// Package model defines the typed rows produced by the transform, their
// natural keys, and the provenance carried by candidate records between the
// flatten and resolve stages.
package model

import (
	"strings"
	"time"
)

// EntityType names one structured entity and, by convention, its table.
type EntityType string

const (
	EntityContacts          EntityType = "contacts"
	EntityChannelDailyStats EntityType = "channel_daily_stats"
	EntityHeatmap           EntityType = "engagement_heatmap"
	EntityCampaigns         EntityType = "campaigns"
	EntityDailySummary      EntityType = "daily_summary"
)

// BaseEntities are the entities with their own source snapshots, in the
// order they are reported.
var BaseEntities = []EntityType{
	EntityContacts,
	EntityChannelDailyStats,
	EntityHeatmap,
	EntityCampaigns,
}

func (e EntityType) String() string {
	return string(e)
}

// ParseEntity maps a configured entity name to its EntityType.
func ParseEntity(name string) (EntityType, bool) {
	e := EntityType(strings.TrimSpace(strings.ToLower(name)))
	switch e {
	case EntityContacts, EntityChannelDailyStats, EntityHeatmap, EntityCampaigns, EntityDailySummary:
		return e, true
	}
	return "", false
}

const keySep = "\x1f"

// Key is a composite natural key. Parts are joined with the ASCII unit
// separator so that no legal field value can collide with another split.
type Key string

// NewKey joins parts into a Key.
func NewKey(parts ...string) Key {
	return Key(strings.Join(parts, keySep))
}

func (k Key) Parts() []string {
	return strings.Split(string(k), keySep)
}

// String renders the key for logs and quality reports.
func (k Key) String() string {
	return strings.Join(k.Parts(), "/")
}

// Record is implemented by every entity row.
type Record interface {
	Entity() EntityType
	NaturalKey() Key
}

// Provenance locates a candidate in the snapshot set it was flattened from.
// SnapshotID is the raw row id, so it doubles as ingestion order; Position
// is the element index inside the snapshot payload.
type Provenance struct {
	LoadedAt   time.Time
	SnapshotID int64
	Position   int
}

// Candidate is one observation of an entity, not yet resolved against other
// observations sharing its natural key.
type Candidate[T Record] struct {
	Record     T
	Provenance Provenance
}

// Key is the natural key of the candidate's record.
func (c Candidate[T]) Key() Key {
	return c.Record.NaturalKey()
}

const dateLayout = "2006-01-02"

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDay renders a calendar date as used in natural keys.
func FormatDay(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

var weekdayOrdinals = map[string]int{
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
	"sunday":    7,
}

// WeekdayOrdinal maps an English weekday name to 1 (monday) .. 7 (sunday).
// Unrecognised names map to 0.
func WeekdayOrdinal(name string) int {
	return weekdayOrdinals[strings.ToLower(strings.TrimSpace(name))]
}
