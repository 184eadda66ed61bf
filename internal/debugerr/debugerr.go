// Package debugerr defines the closed set of stable error kinds surfaced to
// tool-channel clients (§7 of the spec), generalizing the teacher's
// snake_case error-code convention (internal/mcp/errors.go) from an
// open string constant set to a typed, exhaustive enum plus structured
// suggestions.
package debugerr

import "fmt"

// Kind is one of the stable error identifiers from §7.
type Kind string

const (
	InvalidArgument    Kind = "invalid_argument"
	NotFound           Kind = "not_found"
	Unsupported        Kind = "unsupported"
	Timeout            Kind = "timeout"
	Overloaded         Kind = "overloaded"
	ConnectionLost     Kind = "connection_lost"
	ProtocolError      Kind = "protocol_error"
	BudgetExceeded     Kind = "budget_exceeded"
	SafetyLimitReached Kind = "safety_limit_reached"
	InUse              Kind = "in_use"
	CorruptFrame       Kind = "corrupt_frame"
	StorageFull        Kind = "storage_full"
	Internal           Kind = "internal"
)

// Error is the structured error type propagated out of handlers, the
// dispatcher, the cache, and the replay engine. It carries everything
// §7 requires a user-visible error response to carry.
type Error struct {
	Kind        Kind
	Message     string
	Suggestions []string
	Context     map[string]any
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string, suggestions ...string) *Error {
	return &Error{Kind: kind, Message: message, Suggestions: suggestions}
}

// Wrap constructs an Error that wraps a lower-level cause.
func Wrap(kind Kind, cause error, message string, suggestions ...string) *Error {
	return &Error{Kind: kind, Message: message, Suggestions: suggestions, cause: cause}
}

// WithContext attaches identifiers (call id, frame index, request id, ...)
// to the error and returns it for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// As reports whether err is (or wraps) a *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var de *Error
	if errorsAs(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not carry a structured kind (e.g. an unexpected stdlib error surfaced
// from a dependency).
func KindOf(err error) Kind {
	if de, ok := As(err); ok {
		return de.Kind
	}
	return Internal
}
