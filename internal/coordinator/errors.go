package coordinator

import (
	"errors"
	"fmt"
)

// Kind classifies coordinator failures for callers that map them onto
// transport responses.
type Kind string

const (
	// KindValidation is bad or missing input, rejected before any
	// side effect.
	KindValidation Kind = "validation"

	// KindConflict means the room already has a transfer in flight.
	KindConflict Kind = "conflict"

	// KindDependency is a remote provider failure after retries, or a
	// provider that is not configured at all.
	KindDependency Kind = "dependency"

	// KindInternal is everything else.
	KindInternal Kind = "internal"
)

// ErrNotFound marks lookups for rooms, summaries, or calls this
// service has no record of.
var ErrNotFound = errors.New("coordinator: not found")

// Error is the coordinator's public failure type.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, defaulting to internal for errors
// the coordinator did not classify.
func KindOf(err error) Kind {
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr.Kind
	}
	return KindInternal
}

func validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflict(err error, message string) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

func dependency(err error, message string) *Error {
	return &Error{Kind: KindDependency, Message: message, Err: err}
}

func internal(err error, message string) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}
