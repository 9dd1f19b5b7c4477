package flatten

import (
	"iter"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/snapshot"
	"github.com/tidwall/gjson"
)

const defaultCampaignChannel = "push"

// Campaigns flattens /v1/campaign list pages and /v1/campaign/stats
// responses. Both carry a data array; list elements are keyed by "id",
// stats elements by "campaignId".
type Campaigns struct {
	Options Options
}

// Supports accepts campaign endpoints, or an empty endpoint for legacy rows.
func (Campaigns) Supports(endpoint string) bool {
	return endpoint == "" || strings.Contains(endpoint, "/campaign")
}

// Flatten yields one candidate per campaign. The key is id, falling back to
// campaignId.
func (f Campaigns) Flatten(snap snapshot.Raw) (iter.Seq2[model.Candidate[model.Campaign], error], error) {
	data, err := dataArray(snap)
	if err != nil {
		return nil, err
	}
	tenant := f.Options.tenant(snap)

	return func(yield func(model.Candidate[model.Campaign], error) bool) {
		position := 0
		data.ForEach(func(_, elem gjson.Result) bool {
			pos := position
			position++

			id := ID(first(elem, "id", "campaignId"))
			if id == "" {
				return yield(model.Candidate[model.Campaign]{}, missingKey(snap, pos, "id"))
			}
			channel := Text(first(elem, "channel", "type"))
			if !channel.Valid {
				channel.String = defaultCampaignChannel
			}
			return yield(model.Candidate[model.Campaign]{
				Record: model.Campaign{
					TenantID:     tenant,
					CampaignID:   id,
					Name:         Text(first(elem, "name", "title")),
					Channel:      channel.String,
					Account:      f.Options.account(ID(elem.Get("applicationId")), snap.ApplicationID),
					Status:       Text(elem.Get("status")),
					Sent:         Int(elem.Get("sent")),
					Delivered:    Int(elem.Get("delivered")),
					Opened:       Int(elem.Get("opened")),
					Clicked:      Int(elem.Get("clicked")),
					Bounced:      Int(elem.Get("bounced")),
					Blocked:      Int(elem.Get("blocked")),
					Spam:         Int(elem.Get("spam")),
					Unsubscribed: Int(elem.Get("unsubscribed")),
					Converted:    Int(elem.Get("converted")),
					StartDate:    CalendarDate(elem.Get("startDate")),
					EndDate:      CalendarDate(elem.Get("endDate")),
				},
				Provenance: provenance(snap, pos),
			}, nil)
		})
	}, nil
}
