package pipeline

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks storage connectivity failures. It is the
// only error class that aborts a run; everything else is absorbed into
// per-item statistics.
var ErrStoreUnavailable = errors.New("store unavailable")

// ParseError signals that a page no longer matches the structure a
// parser variant expects. Retrying cannot help, so it is treated as a
// permanent per-page failure.
type ParseError struct {
	TargetType string
	URL        string
	Anchor     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s page %s: anchor %q not found", e.TargetType, e.URL, e.Anchor)
}

// ValidationError signals that one extracted item could not be
// normalized into a canonical record. It never aborts the run.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate field %q: %s", e.Field, e.Reason)
}

// ClassifyFailure maps an error from the parse or normalize stages to
// the failure kind recorded in RunStats. ok is false for store
// failures, which are fatal to the run rather than per-item.
func ClassifyFailure(err error) (FailureKind, bool) {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return FailParse, true
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return "", false
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return FailValidation, true
	}
	return FailValidation, true
}
