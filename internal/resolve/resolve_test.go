package resolve

import (
	"database/sql"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC)

func campaign(id string, sent int64, loaded time.Time, snap int64, pos int) model.Candidate[model.Campaign] {
	return model.Candidate[model.Campaign]{
		Record:     model.Campaign{TenantID: "t", CampaignID: id, Sent: sent},
		Provenance: model.Provenance{LoadedAt: loaded, SnapshotID: snap, Position: pos},
	}
}

func TestLatestPicksMostRecentSnapshot(t *testing.T) {
	// Same campaign seen in two snapshots loaded an hour apart.
	cands := []model.Candidate[model.Campaign]{
		campaign("c1", 100, base.Add(-time.Hour), 1, 0),
		campaign("c1", 140, base, 2, 0),
		campaign("c2", 5, base.Add(-time.Hour), 1, 1),
	}

	got := Records(Latest(cands, ByRecency[model.Campaign]))
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].CampaignID)
	assert.Equal(t, int64(140), got[0].Sent)
	assert.Equal(t, "c2", got[1].CampaignID)
}

func TestByRecencyTieBreakers(t *testing.T) {
	sameLoad := []model.Candidate[model.Campaign]{
		campaign("c1", 1, base, 3, 0),
		campaign("c1", 2, base, 4, 0),
		campaign("c1", 3, base, 4, 2),
		campaign("c1", 4, base, 4, 1),
	}
	got := Latest(sameLoad, ByRecency[model.Campaign])
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Record.Sent)
}

func TestContactOrderPrefersLastContact(t *testing.T) {
	day := func(d int) sql.Null[time.Time] {
		return sql.Null[time.Time]{V: time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC), Valid: true}
	}
	mk := func(name string, last sql.Null[time.Time], snap int64) model.Candidate[model.Contact] {
		return model.Candidate[model.Contact]{
			Record: model.Contact{
				TenantID:    "t",
				ContactID:   "k",
				Name:        sql.NullString{String: name, Valid: true},
				LastContact: last,
			},
			Provenance: model.Provenance{LoadedAt: base.Add(time.Duration(snap) * time.Minute), SnapshotID: snap},
		}
	}

	got := Latest([]model.Candidate[model.Contact]{
		mk("newest-load-null", sql.Null[time.Time]{}, 9),
		mk("older-contact", day(10), 8),
		mk("newer-contact", day(12), 1),
	}, ContactOrder)
	require.Len(t, got, 1)
	assert.Equal(t, "newer-contact", got[0].Record.Name.String)

	got = Latest([]model.Candidate[model.Contact]{
		mk("a", day(12), 1),
		mk("b", day(12), 2),
	}, ContactOrder)
	assert.Equal(t, "b", got[0].Record.Name.String)

	got = Latest([]model.Candidate[model.Contact]{
		mk("a", sql.Null[time.Time]{}, 1),
		mk("b", sql.Null[time.Time]{}, 2),
	}, ContactOrder)
	assert.Equal(t, "b", got[0].Record.Name.String)
}

func TestLatestIsOrderIndependent(t *testing.T) {
	var cands []model.Candidate[model.Campaign]
	for snap := int64(1); snap <= 5; snap++ {
		for pos, id := range []string{"a", "b", "c", "a"} {
			cands = append(cands, campaign(id, snap*10+int64(pos), base.Add(time.Duration(snap%3)*time.Hour), snap, pos))
		}
	}
	want := Latest(cands, ByRecency[model.Campaign])

	r := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		shuffled := append([]model.Candidate[model.Campaign](nil), cands...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, Latest(shuffled, ByRecency[model.Campaign]))
	}
}

func TestMergeMatchesSinglePass(t *testing.T) {
	cands := []model.Candidate[model.Campaign]{
		campaign("a", 1, base, 1, 0),
		campaign("b", 2, base, 1, 1),
		campaign("a", 3, base.Add(time.Minute), 2, 0),
		campaign("c", 4, base, 2, 1),
		campaign("b", 5, base, 3, 0),
	}
	order := ByRecency[model.Campaign]
	want := Latest(cands, order)

	left := Latest(cands[:2], order)
	mid := Latest(cands[2:4], order)
	right := Latest(cands[4:], order)

	assert.Equal(t, want, Merge(order, Merge(order, left, mid), right))
	assert.Equal(t, want, Merge(order, left, Merge(order, mid, right)))
	assert.Empty(t, Merge[model.Campaign](order))
}
