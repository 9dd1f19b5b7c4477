package flatten

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
	"github.com/tidwall/gjson"
)

// heatmapChannel is the only channel the heatmap endpoint reports on.
const heatmapChannel = "push"

// Heatmap flattens /v1/application/{id}/pushHeatmap responses, a two-level
// weekday → hour → engagement fraction map:
//
//	{"data": {"weekday-hour": {"monday": {"8": 0.0204, "9": 0.031}, ...}}}
//
// Every (weekday, hour) pair becomes one candidate. Weekday values that are
// not objects are ignored; hour keys outside 0..23 are dropped.
type Heatmap struct {
	Options Options
}

func (Heatmap) Supports(endpoint string) bool {
	return strings.Contains(endpoint, "/pushHeatmap")
}

// Flatten expands the weekday-hour object into one candidate per cell.
func (f Heatmap) Flatten(snap snapshot.Raw) (iter.Seq2[model.Candidate[model.HeatmapCell], error], error) {
	root, err := rootObject(snap)
	if err != nil {
		return nil, err
	}
	data := root.Get("data")
	if !data.IsObject() {
		return nil, fmt.Errorf("%w: snapshot %d: data is %s, want object",
			apperrors.ErrShapeMismatch, snap.ID, describe(data))
	}
	grid := data.Get("weekday-hour")
	if !grid.IsObject() {
		return nil, fmt.Errorf("%w: snapshot %d: weekday-hour is %s, want object",
			apperrors.ErrShapeMismatch, snap.ID, describe(grid))
	}
	tenant := f.Options.tenant(snap)

	return func(yield func(model.Candidate[model.HeatmapCell], error) bool) {
		position := 0
		grid.ForEach(func(dayKey, hours gjson.Result) bool {
			weekday := strings.ToLower(strings.TrimSpace(dayKey.String()))
			if !hours.IsObject() {
				return true
			}
			keepGoing := true
			hours.ForEach(func(hourKey, value gjson.Result) bool {
				pos := position
				position++

				if weekday == "" {
					keepGoing = yield(model.Candidate[model.HeatmapCell]{}, missingKey(snap, pos, "weekday"))
					return keepGoing
				}
				hour, err := strconv.Atoi(strings.TrimSpace(hourKey.String()))
				if err != nil || hour < 0 || hour > 23 {
					keepGoing = yield(model.Candidate[model.HeatmapCell]{}, missingKey(snap, pos, "hour "+hourKey.String()))
					return keepGoing
				}
				keepGoing = yield(model.Candidate[model.HeatmapCell]{
					Record: model.HeatmapCell{
						TenantID:       tenant,
						Channel:        heatmapChannel,
						Weekday:        weekday,
						Hour:           hour,
						WeekdayOrdinal: model.WeekdayOrdinal(weekday),
						Ratio:          Float(value),
					},
					Provenance: provenance(snap, pos),
				}, nil)
				return keepGoing
			})
			return keepGoing
		})
	}, nil
}
