package pipeline

import (
	"errors"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/quality"
)

// EntityResult reports one entity stage. Err is set only for fatal failures;
// skipped snapshots and dropped candidates are counted, not returned.
type EntityResult struct {
	Entity     model.EntityType `json:"entity"`
	Snapshots  int              `json:"snapshots"`
	Skipped    int              `json:"skipped"`
	Candidates int              `json:"candidates"`
	Dropped    int              `json:"dropped"`
	Rows       int              `json:"rows"`
	Duration   time.Duration    `json:"duration_ns"`
	Err        error            `json:"-"`
	Error      string           `json:"error,omitempty"`
}

func (r *EntityResult) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// Summary describes a finished run.
type Summary struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Entities   []EntityResult  `json:"entities"`
	Quality    *quality.Report `json:"quality,omitempty"`

	QualityErr   error  `json:"-"`
	QualityError string `json:"quality_error,omitempty"`
}

// Err joins every fatal stage error of the run.
func (s *Summary) Err() error {
	var errs []error
	for _, e := range s.Entities {
		if e.Err != nil {
			errs = append(errs, e.Err)
		}
	}
	if s.QualityErr != nil {
		errs = append(errs, s.QualityErr)
	}
	return errors.Join(errs...)
}

// Succeeded reports whether every entity and the quality gate completed.
func (s *Summary) Succeeded() bool {
	return s.Err() == nil
}

// Result returns the result for entity, if it was part of the run.
func (s *Summary) Result(entity model.EntityType) (EntityResult, bool) {
	for _, e := range s.Entities {
		if e.Entity == entity {
			return e, true
		}
	}
	return EntityResult{}, false
}

// Published lists the entities that committed at least one row.
func (s *Summary) Published() []model.EntityType {
	var out []model.EntityType
	for _, e := range s.Entities {
		if e.Err == nil && e.Rows > 0 {
			out = append(out, e.Entity)
		}
	}
	return out
}
