package domain

import "errors"

// Domain errors represent pipeline failures.
// Adapters wrap these with %w so services can classify with errors.Is.
var (
	// ErrNotFound indicates a requested entity does not exist.
	// For file fetches this is permanent (upstream deletion, HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSourceUnavailable indicates the remote API could not be queried.
	// Fatal for a run: chunk math needs the complete universe of records.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrEmptyResponse indicates a fetch returned zero bytes or fewer/more
	// bytes than the record's reported size.
	ErrEmptyResponse = errors.New("empty response")

	// ErrTransient indicates a network failure worth retrying
	// (timeouts, connection resets, 5xx responses).
	ErrTransient = errors.New("transient network error")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrForbidden indicates the caller lacks access to the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrLabelFieldMissing indicates a parent object type lacks the
	// configured label field. Index rows fall back to an empty label.
	ErrLabelFieldMissing = errors.New("label field missing")

	// ErrOutputUnwritable indicates the export directory cannot be written.
	ErrOutputUnwritable = errors.New("output directory not writable")

	// ErrNothingToDo indicates every file kind was disabled.
	ErrNothingToDo = errors.New("nothing to do")
)

// IsRetryable reports whether a fetch error should be retried within the
// same materialization call.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
		return false
	case errors.Is(err, ErrTransient), errors.Is(err, ErrRateLimited), errors.Is(err, ErrEmptyResponse):
		return true
	default:
		return false
	}
}
