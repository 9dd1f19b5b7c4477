// Package resolve collapses candidates that share a natural key down to the
// single observation that wins under a total recency order.
package resolve

import (
	"cmp"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
)

// Compare orders two candidates of the same key. A negative result means a
// ranks ahead of b (a is the more recent observation).
type Compare[T model.Record] func(a, b model.Candidate[T]) int

// ByRecency ranks by LoadedAt, then SnapshotID, then Position, all
// descending. No two candidates tie: SnapshotID and Position locate a
// unique element.
func ByRecency[T model.Record](a, b model.Candidate[T]) int {
	if c := b.Provenance.LoadedAt.Compare(a.Provenance.LoadedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Provenance.SnapshotID, a.Provenance.SnapshotID); c != 0 {
		return c
	}
	return cmp.Compare(b.Provenance.Position, a.Provenance.Position)
}

// ContactOrder prefers the most recent last_contact, NULLs last, and falls
// back to ByRecency.
func ContactOrder(a, b model.Candidate[model.Contact]) int {
	al, bl := a.Record.LastContact, b.Record.LastContact
	switch {
	case al.Valid && !bl.Valid:
		return -1
	case !al.Valid && bl.Valid:
		return 1
	case al.Valid && bl.Valid:
		if c := bl.V.Compare(al.V); c != 0 {
			return c
		}
	}
	return ByRecency(a, b)
}

// Latest returns one candidate per natural key, the one ranked first by
// order, sorted by natural key. The result does not depend on input order.
func Latest[T model.Record](cands []model.Candidate[T], order Compare[T]) []model.Candidate[T] {
	winners := make(map[model.Key]model.Candidate[T], len(cands))
	for _, c := range cands {
		k := c.Key()
		if cur, ok := winners[k]; !ok || order(c, cur) < 0 {
			winners[k] = c
		}
	}
	return sorted(winners)
}

// Merge combines the winners of independently resolved partitions. It is
// associative and commutative, so partitions may be resolved in any grouping.
func Merge[T model.Record](order Compare[T], parts ...[]model.Candidate[T]) []model.Candidate[T] {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	all := make([]model.Candidate[T], 0, n)
	for _, p := range parts {
		all = append(all, p...)
	}
	return Latest(all, order)
}

// Records strips provenance from resolved candidates.
func Records[T model.Record](cands []model.Candidate[T]) []T {
	out := make([]T, len(cands))
	for i, c := range cands {
		out[i] = c.Record
	}
	return out
}

func sorted[T model.Record](winners map[model.Key]model.Candidate[T]) []model.Candidate[T] {
	keys := make([]model.Key, 0, len(winners))
	for k := range winners {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]model.Candidate[T], len(keys))
	for i, k := range keys {
		out[i] = winners[k]
	}
	return out
}
