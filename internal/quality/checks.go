package quality

import (
	"database/sql"
	"math"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
)

const (
	CheckRateBounds        = "rate_bounds"
	CheckNonNegativeCounts = "non_negative_counts"
	CheckNoFutureDates     = "no_future_dates"
	CheckContactDateOrder  = "contact_date_order"
)

// Check evaluates one invariant over a dataset. today is the current UTC
// calendar date.
type Check struct {
	Name string
	Run  func(d Dataset, today time.Time) []Violation
}

// DefaultChecks returns every check the gate runs when none are given.
func DefaultChecks() []Check {
	return []Check{
		{Name: CheckRateBounds, Run: rateBounds},
		{Name: CheckNonNegativeCounts, Run: nonNegativeCounts},
		{Name: CheckNoFutureDates, Run: noFutureDates},
		{Name: CheckContactDateOrder, Run: contactDateOrder},
	}
}

type numField struct {
	name  string
	value float64
}

type dateField struct {
	name  string
	value sql.Null[time.Time]
}

func valid(t time.Time) sql.Null[time.Time] {
	return sql.Null[time.Time]{V: t, Valid: true}
}

// collector accumulates violations of one check.
type collector struct {
	check string
	out   []Violation
}

func (c *collector) add(rec model.Record, field, value string) {
	c.out = append(c.out, Violation{
		Check:  c.check,
		Entity: rec.Entity(),
		Key:    rec.NaturalKey().String(),
		Field:  field,
		Value:  value,
	})
}

func (c *collector) numbers(rec model.Record, fields []numField, bad func(float64) bool) {
	for _, f := range fields {
		if bad(f.value) {
			c.add(rec, f.name, strconv.FormatFloat(f.value, 'f', -1, 64))
		}
	}
}

func rateBounds(d Dataset, _ time.Time) []Violation {
	c := &collector{check: CheckRateBounds}
	outside := func(v float64) bool { return v < 0 || v > 100 || math.IsNaN(v) }
	for _, s := range d.DailyStats {
		c.numbers(s, []numField{
			{"click_rate", s.ClickRate},
			{"delivery_rate", s.DeliveryRate},
			{"open_rate", s.OpenRate},
		}, outside)
	}
	for _, cp := range d.Campaigns {
		c.numbers(cp, []numField{
			{"click_rate", cp.ClickRate},
			{"delivery_rate", cp.DeliveryRate},
			{"open_rate", cp.OpenRate},
			{"conversion_rate", cp.ConversionRate},
		}, outside)
	}
	for _, h := range d.Heatmap {
		c.numbers(h, []numField{{"engagement", h.Engagement}}, outside)
	}
	return c.out
}

func nonNegativeCounts(d Dataset, _ time.Time) []Violation {
	c := &collector{check: CheckNonNegativeCounts}
	negative := func(v float64) bool { return v < 0 }
	for _, s := range d.DailyStats {
		c.numbers(s, []numField{
			{"sent", float64(s.Sent)},
			{"delivered", float64(s.Delivered)},
			{"opened", float64(s.Opened)},
			{"clicked", float64(s.Clicked)},
		}, negative)
	}
	for _, cp := range d.Campaigns {
		c.numbers(cp, []numField{
			{"sent", float64(cp.Sent)},
			{"delivered", float64(cp.Delivered)},
			{"opened", float64(cp.Opened)},
			{"clicked", float64(cp.Clicked)},
			{"bounced", float64(cp.Bounced)},
			{"blocked", float64(cp.Blocked)},
			{"spam", float64(cp.Spam)},
			{"unsubscribed", float64(cp.Unsubscribed)},
			{"converted", float64(cp.Converted)},
		}, negative)
	}
	for _, h := range d.Heatmap {
		c.numbers(h, []numField{{"ratio", h.Ratio}}, negative)
	}
	for _, s := range d.Summaries {
		fields := []numField{
			{"total_sent", float64(s.TotalSent)},
			{"total_delivered", float64(s.TotalDelivered)},
			{"total_opened", float64(s.TotalOpened)},
			{"total_clicked", float64(s.TotalClicked)},
		}
		for _, opt := range []struct {
			name  string
			value sql.NullInt64
		}{
			{"unique_contacts", s.UniqueContacts},
			{"conversations", s.Conversations},
			{"fallback_count", s.FallbackCount},
		} {
			if opt.value.Valid {
				fields = append(fields, numField{opt.name, float64(opt.value.Int64)})
			}
		}
		c.numbers(s, fields, negative)
	}
	return c.out
}

func noFutureDates(d Dataset, today time.Time) []Violation {
	c := &collector{check: CheckNoFutureDates}
	check := func(rec model.Record, fields ...dateField) {
		for _, f := range fields {
			if f.value.Valid && model.Day(f.value.V).After(today) {
				c.add(rec, f.name, model.FormatDay(f.value.V))
			}
		}
	}
	for _, ct := range d.Contacts {
		check(ct, dateField{"first_contact", ct.FirstContact}, dateField{"last_contact", ct.LastContact})
	}
	for _, s := range d.DailyStats {
		check(s, dateField{"date", valid(s.Date)})
	}
	for _, cp := range d.Campaigns {
		check(cp, dateField{"start_date", cp.StartDate}, dateField{"end_date", cp.EndDate})
	}
	for _, s := range d.Summaries {
		check(s, dateField{"date", valid(s.Date)})
	}
	return c.out
}

func contactDateOrder(d Dataset, _ time.Time) []Violation {
	c := &collector{check: CheckContactDateOrder}
	for _, ct := range d.Contacts {
		if ct.FirstContact.Valid && ct.LastContact.Valid && ct.FirstContact.V.After(ct.LastContact.V) {
			c.add(ct, "first_contact", model.FormatDay(ct.FirstContact.V))
		}
	}
	return c.out
}
