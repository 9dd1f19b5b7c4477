// Package flatten turns raw snapshot payloads into candidate records. Each
// Flattener understands one source shape; payloads that do not match it are
// reported with ErrShapeMismatch and skipped by the caller, and single
// elements that lack their natural key are yielded as ErrMissingKey so the
// caller can count them.
package flatten

import (
	"fmt"
	"iter"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
	"github.com/tidwall/gjson"
)

// Options carries the fallbacks applied at the flatten boundary.
type Options struct {
	DefaultTenant  string
	DefaultAccount string
}

// Flattener maps one snapshot onto candidates of a single entity type. The
// returned sequence is lazy; elements are extracted as it is ranged over.
type Flattener[T model.Record] interface {
	Supports(endpoint string) bool
	Flatten(snap snapshot.Raw) (iter.Seq2[model.Candidate[T], error], error)
}

// Registry holds the flatteners for one entity and selects one per snapshot.
type Registry[T model.Record] struct {
	items []Flattener[T]
}

// NewRegistry builds a registry; Find checks flatteners in the order given.
func NewRegistry[T model.Record](items ...Flattener[T]) *Registry[T] {
	return &Registry[T]{items: items}
}

// Find returns the first flattener supporting endpoint, or nil.
func (r *Registry[T]) Find(endpoint string) Flattener[T] {
	if r == nil {
		return nil
	}
	for _, f := range r.items {
		if f.Supports(endpoint) {
			return f
		}
	}
	return nil
}

func (o Options) tenant(snap snapshot.Raw) string {
	if t := strings.TrimSpace(snap.TenantID); t != "" {
		return t
	}
	return o.DefaultTenant
}

func (o Options) account(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return o.DefaultAccount
}

func provenance(snap snapshot.Raw, position int) model.Provenance {
	return model.Provenance{
		LoadedAt:   snap.LoadedAt,
		SnapshotID: snap.ID,
		Position:   position,
	}
}

// dataArray validates the common {"data": [...]} envelope.
func dataArray(snap snapshot.Raw) (gjson.Result, error) {
	root, err := rootObject(snap)
	if err != nil {
		return gjson.Result{}, err
	}
	data := root.Get("data")
	if !data.IsArray() {
		return gjson.Result{}, fmt.Errorf("%w: snapshot %d: data is %s, want array",
			apperrors.ErrShapeMismatch, snap.ID, describe(data))
	}
	return data, nil
}

func rootObject(snap snapshot.Raw) (gjson.Result, error) {
	if !gjson.ValidBytes(snap.Payload) {
		return gjson.Result{}, fmt.Errorf("%w: snapshot %d: invalid json", apperrors.ErrShapeMismatch, snap.ID)
	}
	root := gjson.ParseBytes(snap.Payload)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: snapshot %d: payload is %s, want object",
			apperrors.ErrShapeMismatch, snap.ID, describe(root))
	}
	return root, nil
}

func describe(r gjson.Result) string {
	switch {
	case !r.Exists():
		return "missing"
	case r.IsArray():
		return "array"
	case r.IsObject():
		return "object"
	default:
		return strings.ToLower(r.Type.String())
	}
}

func missingKey(snap snapshot.Raw, position int, field string) error {
	return fmt.Errorf("%w: snapshot %d element %d: %s", apperrors.ErrMissingKey, snap.ID, position, field)
}
