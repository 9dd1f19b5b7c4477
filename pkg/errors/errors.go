// Package errors defines the sentinel errors shared by the transform pipeline
// and the StageError wrapper that tells a caller which entity and stage of a
// run failed.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrShapeMismatch    = errors.New("snapshot payload shape mismatch")
	ErrMissingKey       = errors.New("natural key field missing")
	ErrSnapshotStore    = errors.New("snapshot store unavailable")
	ErrStructuredStore  = errors.New("structured store unavailable")
	ErrLockHeld         = errors.New("transform run already in progress")
	ErrDependencyFailed = errors.New("upstream stage failed")
	ErrUnknownEntity    = errors.New("unknown entity")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// Stage names reported in StageError.
const (
	StageLoad      = "load"
	StageFlatten   = "flatten"
	StagePublish   = "publish"
	StageAggregate = "aggregate"
	StageQuality   = "quality"
)

// StageError records which entity and pipeline stage an error came from.
type StageError struct {
	Entity string
	Stage  string
	Err    error
}

// Error formats the error as entity/stage: cause.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Entity, e.Stage, e.Err.Error())
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStage wraps err with its entity and stage.
func NewStage(entity, stage string, err error) *StageError {
	return &StageError{
		Entity: entity,
		Stage:  stage,
		Err:    err,
	}
}

// Stagef builds a StageError whose cause wraps sentinel with a formatted message.
func Stagef(entity, stage string, sentinel error, format string, args ...any) *StageError {
	return &StageError{
		Entity: entity,
		Stage:  stage,
		Err:    fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// IsFatal reports whether err must abort the run. Only infrastructure failures
// qualify; per-snapshot and per-candidate problems are skipped upstream.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrShapeMismatch), errors.Is(err, ErrMissingKey):
		return false
	default:
		return true
	}
}

// StageOf extracts the failing stage name, or "" when err carries none.
func StageOf(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
