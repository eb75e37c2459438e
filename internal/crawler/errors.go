package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport marks network and timeout failures. Retried up to a bounded count.
	ErrTransport = errors.New("transport failure")
	// ErrBlockedByTarget marks a "too many requests" page served by the target site.
	ErrBlockedByTarget = errors.New("blocked by target")
	// ErrNoWorkingProxy is returned when every proxy in the pool failed for a URL.
	ErrNoWorkingProxy = errors.New("no working proxy")
	// ErrParse marks markup that could not be parsed or lacks expected elements.
	ErrParse = errors.New("parse failure")
	// ErrSchemaMismatch marks a table whose rows disagree with its header.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrQuotaExhausted is returned when no credential has enough credit left.
	ErrQuotaExhausted = errors.New("quota exhausted")
)

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError
}

// classify maps a fetch error to a target outcome.
func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, ErrBlockedByTarget), errors.Is(err, ErrNoWorkingProxy):
		return OutcomeBlocked
	default:
		return OutcomeFailed
	}
}
