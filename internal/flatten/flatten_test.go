package flatten

import (
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var opts = Options{DefaultTenant: "visionamos", DefaultAccount: "100274"}

func raw(id int64, endpoint, payload string) snapshot.Raw {
	return snapshot.Raw{
		ID:       id,
		Endpoint: endpoint,
		Payload:  []byte(payload),
		LoadedAt: time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC),
	}
}

func collect[T model.Record](t *testing.T, seq iter.Seq2[model.Candidate[T], error]) ([]model.Candidate[T], []error) {
	t.Helper()
	var (
		out  []model.Candidate[T]
		errs []error
	)
	for c, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, c)
	}
	return out, errs
}

func TestHeatmapCrossExpansion(t *testing.T) {
	snap := raw(7, "/v1/application/100274/pushHeatmap",
		`{"data":{"weekday-hour":{"monday":{"8":0.0204,"9":"0.5"},"sunday":{"23":1},"holiday":null}}}`)

	seq, err := Heatmap{Options: opts}.Flatten(snap)
	require.NoError(t, err)
	cells, errs := collect(t, seq)
	require.Empty(t, errs)
	require.Len(t, cells, 3)

	first := cells[0].Record
	assert.Equal(t, "visionamos", first.TenantID)
	assert.Equal(t, "push", first.Channel)
	assert.Equal(t, "monday", first.Weekday)
	assert.Equal(t, 8, first.Hour)
	assert.Equal(t, 1, first.WeekdayOrdinal)
	assert.InDelta(t, 0.0204, first.Ratio, 1e-9)
	assert.Equal(t, model.Provenance{LoadedAt: snap.LoadedAt, SnapshotID: 7, Position: 0}, cells[0].Provenance)

	assert.InDelta(t, 0.5, cells[1].Record.Ratio, 1e-9)
	assert.Equal(t, 7, cells[2].Record.WeekdayOrdinal)
	assert.Equal(t, 23, cells[2].Record.Hour)
}

func TestHeatmapDropsInvalidHours(t *testing.T) {
	snap := raw(1, "/pushHeatmap", `{"data":{"weekday-hour":{"friday":{"24":0.1,"x":0.2,"3":0.3}}}}`)

	seq, err := Heatmap{Options: opts}.Flatten(snap)
	require.NoError(t, err)
	cells, errs := collect(t, seq)
	require.Len(t, cells, 1)
	assert.Equal(t, 3, cells[0].Record.Hour)
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.ErrorIs(t, e, apperrors.ErrMissingKey)
	}
}

func TestShapeMismatch(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		flatten func(snapshot.Raw) error
	}{
		{"contacts data object", `{"data":{"contactId":"1"}}`, func(s snapshot.Raw) error {
			_, err := Contacts{Options: opts}.Flatten(s)
			return err
		}},
		{"daily stats not json", `{"data":[`, func(s snapshot.Raw) error {
			_, err := ChannelDailyStats{Options: opts}.Flatten(s)
			return err
		}},
		{"campaigns root array", `[{"id":"c1"}]`, func(s snapshot.Raw) error {
			_, err := Campaigns{Options: opts}.Flatten(s)
			return err
		}},
		{"heatmap data array", `{"data":[]}`, func(s snapshot.Raw) error {
			_, err := Heatmap{Options: opts}.Flatten(s)
			return err
		}},
		{"heatmap grid missing", `{"data":{}}`, func(s snapshot.Raw) error {
			_, err := Heatmap{Options: opts}.Flatten(s)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flatten(raw(3, "", tt.payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrShapeMismatch))
			assert.False(t, apperrors.IsFatal(err))
		})
	}
}

func TestContactsMissingKeyIsReportedNotFatal(t *testing.T) {
	snap := raw(4, "/v1/chat/contacts", `{"data":[
		{"contactId":"a","profileName":"Ana","createdAt":"2026-01-02T23:30:00-05:00","updatedAt":1771236000000},
		{"profileName":"ghost"},
		{"contactId":42,"profileName":""}
	]}`)
	snap.TenantID = "acme"

	seq, err := Contacts{Options: opts}.Flatten(snap)
	require.NoError(t, err)
	contacts, errs := collect(t, seq)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], apperrors.ErrMissingKey)
	require.Len(t, contacts, 2)

	ana := contacts[0].Record
	assert.Equal(t, "acme", ana.TenantID)
	assert.Equal(t, "Ana", ana.Name.String)
	assert.Equal(t, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), ana.FirstContact.V)
	assert.Equal(t, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), ana.LastContact.V)
	assert.False(t, ana.Channel.Valid)

	assert.Equal(t, "42", contacts[1].Record.ContactID)
	assert.False(t, contacts[1].Record.Name.Valid)
	assert.Equal(t, 2, contacts[1].Provenance.Position)
}

func TestDailyStatsFields(t *testing.T) {
	snap := raw(9, "/v1/application/555/dateStats", `{"data":[
		{"platformGroup":"android","statsDate":"2026-02-16","numDevicesSent":120,"numDevicesSuccess":"100","numDevicesReceived":80.9,"numDevicesClicked":15},
		{"platformGroup":"ios"}
	]}`)

	seq, err := ChannelDailyStats{Options: opts}.Flatten(snap)
	require.NoError(t, err)
	stats, errs := collect(t, seq)
	require.Len(t, errs, 1)
	require.Len(t, stats, 1)

	s := stats[0].Record
	assert.Equal(t, "100274", s.Account)
	assert.Equal(t, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), s.Date)
	assert.Equal(t, int64(120), s.Sent)
	assert.Equal(t, int64(100), s.Delivered)
	assert.Equal(t, int64(80), s.Opened)
	assert.Equal(t, int64(15), s.Clicked)

	snap.ApplicationID = "555"
	seq, err = ChannelDailyStats{Options: opts}.Flatten(snap)
	require.NoError(t, err)
	stats, _ = collect(t, seq)
	assert.Equal(t, "555", stats[0].Record.Account)
}

func TestCampaignFallbacks(t *testing.T) {
	snap := raw(2, "/v1/campaign/stats", `{"data":[
		{"campaignId":"c-1","title":"Promo","sent":"10","converted":3},
		{"id":"c-2","name":"Launch","type":"sms","applicationId":"777","status":"done","startDate":"2026-01-01"}
	]}`)

	seq, err := Campaigns{Options: opts}.Flatten(snap)
	require.NoError(t, err)
	cs, errs := collect(t, seq)
	require.Empty(t, errs)
	require.Len(t, cs, 2)

	assert.Equal(t, "c-1", cs[0].Record.CampaignID)
	assert.Equal(t, "Promo", cs[0].Record.Name.String)
	assert.Equal(t, "push", cs[0].Record.Channel)
	assert.Equal(t, "100274", cs[0].Record.Account)
	assert.Equal(t, int64(10), cs[0].Record.Sent)
	assert.False(t, cs[0].Record.StartDate.Valid)

	assert.Equal(t, "sms", cs[1].Record.Channel)
	assert.Equal(t, "777", cs[1].Record.Account)
	assert.Equal(t, "done", cs[1].Record.Status.String)
	assert.True(t, cs[1].Record.StartDate.Valid)
}

func TestRegistryFind(t *testing.T) {
	reg := NewRegistry[model.HeatmapCell](Heatmap{Options: opts})
	assert.NotNil(t, reg.Find("/v1/application/1/pushHeatmap"))
	assert.Nil(t, reg.Find("/v1/application/1/dateStats"))

	var nilReg *Registry[model.Contact]
	assert.Nil(t, nilReg.Find("/v1/chat/contacts"))

	assert.True(t, Contacts{}.Supports(""))
	assert.True(t, Campaigns{}.Supports("/v1/campaign?page=2"))
	assert.False(t, ChannelDailyStats{}.Supports("/v1/application/1/pushHeatmap"))
}

func TestCoercion(t *testing.T) {
	parse := func(s string) gjson.Result { return gjson.Parse(s) }

	assert.Equal(t, int64(12), Int(parse(`"12.7"`)))
	assert.Equal(t, int64(-3), Int(parse(`-3.9`)))
	assert.Equal(t, int64(0), Int(parse(`"abc"`)))
	assert.Equal(t, int64(0), Int(parse(`null`)))
	assert.Equal(t, int64(0), Int(gjson.Result{}))

	assert.InDelta(t, 0.25, Float(parse(`"0.25"`)), 1e-12)
	assert.Zero(t, Float(parse(`true`)))

	assert.True(t, Bool(parse(`true`)))
	assert.True(t, Bool(parse(`"true"`)))
	assert.True(t, Bool(parse(`1`)))
	assert.False(t, Bool(parse(`"nope"`)))

	assert.False(t, Text(parse(`"  "`)).Valid)
	assert.Equal(t, "7", Text(parse(`7`)).String)

	assert.Equal(t, "123", ID(parse(`123`)))
	assert.Equal(t, "", ID(parse(`{}`)))

	d := Date(parse(`"2026-02-16 08:30:00"`))
	require.True(t, d.Valid)
	assert.Equal(t, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), d.V)
	assert.True(t, Date(parse(`1771200000`)).Valid)
	assert.False(t, Date(parse(`"16/02/2026"`)).Valid)
	assert.False(t, Date(parse(`0`)).Valid)
}

func TestDateVariants(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		utc      time.Time
		calendar time.Time
	}{
		{"plain date", `"2026-02-16"`, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)},
		{"negative offset late evening", `"2026-02-16T23:30:00-05:00"`, time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)},
		{"positive offset early morning", `"2026-02-16T01:00:00+03:00"`, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)},
		{"epoch seconds", `1771200000`, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Date(gjson.Parse(tt.in))
			require.True(t, d.Valid)
			assert.Equal(t, tt.utc, d.V)

			c := CalendarDate(gjson.Parse(tt.in))
			require.True(t, c.Valid)
			assert.Equal(t, tt.calendar, c.V)
		})
	}
	assert.False(t, CalendarDate(gjson.Parse(`"16/02/2026"`)).Valid)
}

func TestDateOnlyFieldsKeepWrittenDay(t *testing.T) {
	stats := raw(10, "/v1/application/555/dateStats", `{"data":[
		{"platformGroup":"android","statsDate":"2026-02-16T23:30:00-05:00","numDevicesSent":1}
	]}`)
	seq, err := ChannelDailyStats{Options: opts}.Flatten(stats)
	require.NoError(t, err)
	got, errs := collect(t, seq)
	require.Empty(t, errs)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), got[0].Record.Date)
	assert.Contains(t, got[0].Key().String(), "2026-02-16")

	campaigns := raw(11, "/v1/campaign", `{"data":[
		{"id":"c-9","startDate":"2026-02-16T23:30:00-05:00","endDate":"2026-02-20T00:15:00+02:00"}
	]}`)
	cseq, err := Campaigns{Options: opts}.Flatten(campaigns)
	require.NoError(t, err)
	cs, errs := collect(t, cseq)
	require.Empty(t, errs)
	require.Len(t, cs, 1)
	assert.Equal(t, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), cs[0].Record.StartDate.V)
	assert.Equal(t, time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), cs[0].Record.EndDate.V)
}
