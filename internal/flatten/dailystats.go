package flatten

import (
	"iter"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/snapshot"
	"github.com/tidwall/gjson"
)

// ChannelDailyStats flattens /v1/application/{id}/dateStats responses. One
// element per platform group and day:
//
//	{"data": [{"platformGroup": "android", "statsDate": "2026-02-16",
//	           "numDevicesSent": 120, "numDevicesSuccess": 100,
//	           "numDevicesReceived": 80, "numDevicesClicked": 15}, ...]}
//
// The account is the snapshot's application id.
type ChannelDailyStats struct {
	Options Options
}

// Supports accepts /dateStats endpoints.
func (ChannelDailyStats) Supports(endpoint string) bool {
	return strings.Contains(endpoint, "/dateStats")
}

// Flatten yields one candidate per platform and day. Elements missing
// platformGroup or statsDate yield ErrMissingKey.
func (f ChannelDailyStats) Flatten(snap snapshot.Raw) (iter.Seq2[model.Candidate[model.ChannelDailyStat], error], error) {
	data, err := dataArray(snap)
	if err != nil {
		return nil, err
	}
	tenant := f.Options.tenant(snap)
	account := f.Options.account(snap.ApplicationID)

	return func(yield func(model.Candidate[model.ChannelDailyStat], error) bool) {
		position := 0
		data.ForEach(func(_, elem gjson.Result) bool {
			pos := position
			position++

			channel := ID(elem.Get("platformGroup"))
			if channel == "" {
				return yield(model.Candidate[model.ChannelDailyStat]{}, missingKey(snap, pos, "platformGroup"))
			}
			date := CalendarDate(elem.Get("statsDate"))
			if !date.Valid {
				return yield(model.Candidate[model.ChannelDailyStat]{}, missingKey(snap, pos, "statsDate"))
			}
			return yield(model.Candidate[model.ChannelDailyStat]{
				Record: model.ChannelDailyStat{
					TenantID:  tenant,
					Date:      date.V,
					Channel:   channel,
					Account:   account,
					Sent:      Int(elem.Get("numDevicesSent")),
					Delivered: Int(elem.Get("numDevicesSuccess")),
					Opened:    Int(elem.Get("numDevicesReceived")),
					Clicked:   Int(elem.Get("numDevicesClicked")),
				},
				Provenance: provenance(snap, pos),
			}, nil)
		})
	}, nil
}
