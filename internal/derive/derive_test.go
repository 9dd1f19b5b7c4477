package derive

import (
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestRate(t *testing.T) {
	tests := []struct {
		name     string
		num, den int64
		want     float64
	}{
		{"click rate", 15, 120, 12.5},
		{"delivery rate", 100, 120, 83.33},
		{"two thirds", 2, 3, 66.67},
		{"all", 7, 7, 100},
		{"zero denominator", 15, 0, 0},
		{"negative denominator", 1, -4, 0},
		{"zero numerator", 0, 9, 0},
		{"above bounds kept", 3, 2, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rate(tt.num, tt.den)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestPercent(t *testing.T) {
	assert.InDelta(t, 2.04, Percent(0.0204), 1e-9)
	assert.InDelta(t, 12.5, Percent(0.125), 1e-9)
	assert.Zero(t, Percent(math.NaN()))
	assert.Zero(t, Percent(math.Inf(1)))
}

func TestChannelDailyStat(t *testing.T) {
	s := ChannelDailyStat(model.ChannelDailyStat{Sent: 120, Delivered: 100, Opened: 40, Clicked: 15})
	assert.InDelta(t, 12.5, s.ClickRate, 1e-9)
	assert.InDelta(t, 83.33, s.DeliveryRate, 1e-9)
	assert.InDelta(t, 40.0, s.OpenRate, 1e-9)

	empty := ChannelDailyStat(model.ChannelDailyStat{})
	assert.Zero(t, empty.ClickRate)
	assert.Zero(t, empty.OpenRate)
}

func TestCampaign(t *testing.T) {
	c := Campaign(model.Campaign{Sent: 200, Delivered: 180, Opened: 90, Clicked: 30, Converted: 6})
	assert.InDelta(t, 15.0, c.ClickRate, 1e-9)
	assert.InDelta(t, 90.0, c.DeliveryRate, 1e-9)
	assert.InDelta(t, 50.0, c.OpenRate, 1e-9)
	assert.InDelta(t, 20.0, c.ConversionRate, 1e-9)

	noClicks := Campaign(model.Campaign{Sent: 10, Converted: 2})
	assert.Zero(t, noClicks.ConversionRate)
}

func TestAll(t *testing.T) {
	cells := All([]model.HeatmapCell{{Ratio: 0.0204}, {Ratio: 1}}, HeatmapCell)
	assert.InDelta(t, 2.04, cells[0].Engagement, 1e-9)
	assert.InDelta(t, 100.0, cells[1].Engagement, 1e-9)
}
