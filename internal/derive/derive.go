// Package derive computes the rate fields of resolved records. All functions
// are pure and total: a zero or negative denominator yields 0, never NaN or
// an error.
package derive

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
)

// Rate returns num/den as a percentage rounded to two decimals, half away
// from zero. Values outside [0, 100] are returned as computed; the quality
// gate reports them.
func Rate(num, den int64) float64 {
	if den <= 0 {
		return 0
	}
	return round2(float64(num) / float64(den) * 100)
}

// Percent converts a fraction to a percentage rounded to two decimals.
func Percent(ratio float64) float64 {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0
	}
	return round2(ratio * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ChannelDailyStat fills click and delivery rates over sent, and open rate
// over delivered.
func ChannelDailyStat(s model.ChannelDailyStat) model.ChannelDailyStat {
	s.ClickRate = Rate(s.Clicked, s.Sent)
	s.DeliveryRate = Rate(s.Delivered, s.Sent)
	s.OpenRate = Rate(s.Opened, s.Delivered)
	return s
}

// Campaign fills the same rates as a daily stat plus conversion over clicked.
func Campaign(c model.Campaign) model.Campaign {
	c.ClickRate = Rate(c.Clicked, c.Sent)
	c.DeliveryRate = Rate(c.Delivered, c.Sent)
	c.OpenRate = Rate(c.Opened, c.Delivered)
	c.ConversionRate = Rate(c.Converted, c.Clicked)
	return c
}

// HeatmapCell turns the engagement ratio into a percentage.
func HeatmapCell(h model.HeatmapCell) model.HeatmapCell {
	h.Engagement = Percent(h.Ratio)
	return h
}

// All applies fn to every record.
func All[T any](records []T, fn func(T) T) []T {
	out := make([]T, len(records))
	for i, r := range records {
		out[i] = fn(r)
	}
	return out
}
