package flatten

import (
	"iter"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/snapshot"
	"github.com/tidwall/gjson"
)

// Contacts flattens /v1/chat/contacts pages:
//
//	{"data": [{"contactId": "...", "profileName": "...", "channel": "...",
//	           "createdAt": "<timestamp>", "updatedAt": "<timestamp>"}, ...]}
type Contacts struct {
	Options Options
}

// Supports accepts the contacts endpoint, or an empty endpoint for legacy rows.
func (Contacts) Supports(endpoint string) bool {
	return endpoint == "" || strings.Contains(endpoint, "/chat/contacts")
}

// Flatten yields one candidate per element of data. Elements without a
// contactId yield ErrMissingKey.
func (f Contacts) Flatten(snap snapshot.Raw) (iter.Seq2[model.Candidate[model.Contact], error], error) {
	data, err := dataArray(snap)
	if err != nil {
		return nil, err
	}
	tenant := f.Options.tenant(snap)

	return func(yield func(model.Candidate[model.Contact], error) bool) {
		position := 0
		data.ForEach(func(_, elem gjson.Result) bool {
			pos := position
			position++

			id := ID(elem.Get("contactId"))
			if id == "" {
				return yield(model.Candidate[model.Contact]{}, missingKey(snap, pos, "contactId"))
			}
			return yield(model.Candidate[model.Contact]{
				Record: model.Contact{
					TenantID:     tenant,
					ContactID:    id,
					Name:         Text(elem.Get("profileName")),
					Channel:      Text(elem.Get("channel")),
					FirstContact: Date(elem.Get("createdAt")),
					LastContact:  Date(elem.Get("updatedAt")),
				},
				Provenance: provenance(snap, pos),
			}, nil)
		})
	}, nil
}
