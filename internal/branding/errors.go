package branding

import (
	"errors"
	"fmt"
)

// Store sentinels.
var (
	// ErrJobNotFound is returned by JobStore lookups that match nothing.
	ErrJobNotFound = errors.New("job not found")
	// ErrTerminalStage is returned when a checkpoint would replace a
	// terminal stage with a different stage. A canceled job must never be
	// silently overwritten by a late completed/failed write.
	ErrTerminalStage = errors.New("job is already in a terminal stage")
	// ErrBudgetExceeded is raised once cumulative downloads pass the
	// per-job byte cap.
	ErrBudgetExceeded = errors.New("download budget exceeded")
)

// ErrorKind classifies a pipeline failure per the error taxonomy.
type ErrorKind string

// Failure classes. Validation and infrastructure failures are permanent;
// transient failures are retried; extraction and automation failures are
// mitigated by fallbacks rather than failing the job.
const (
	KindValidation     ErrorKind = "validation"
	KindCrawl          ErrorKind = "crawl"
	KindTransient      ErrorKind = "transient"
	KindExtraction     ErrorKind = "extraction"
	KindAutomation     ErrorKind = "automation"
	KindInfrastructure ErrorKind = "infrastructure"
)

// PipelineError is a typed activity failure carried to the coordinator's
// classification step.
type PipelineError struct {
	Kind     ErrorKind
	Activity string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Activity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Activity, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *PipelineError) Unwrap() error { return e.Err }

// NewError builds a PipelineError.
func NewError(kind ErrorKind, activity, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Activity: activity, Message: message, Err: err}
}

// KindOf extracts the error kind, defaulting to transient for plain errors
// so the retry policy gets a chance before the failure is promoted.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// IsPermanent reports whether retrying the error is pointless.
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindCrawl, KindInfrastructure:
		return true
	default:
		return false
	}
}
