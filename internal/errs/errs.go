package errs

import (
	"errors"
	"fmt"
)

// Kind places an error in the conversion failure taxonomy. The kind is
// what transport and logging layers dispatch on; it is also the
// machine-readable code surfaced to API clients.
type Kind string

const (
	InvalidInput       Kind = "INVALID_INPUT"
	ExternalToolFailed Kind = "EXTERNAL_TOOL_FAILED"
	Timeout            Kind = "TIMEOUT"
	NoOutputProduced   Kind = "NO_OUTPUT_PRODUCED"
	Internal           Kind = "INTERNAL_ERROR"
)

// Error is a tagged error. The optional cause stays reachable through
// Unwrap, so callers can still errors.Is against sentinel values from
// lower layers.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a tagged error without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the kind of err. Untagged errors count as Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
