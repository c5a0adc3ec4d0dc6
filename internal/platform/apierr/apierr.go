// Package apierr defines the hub's error taxonomy, carried as {status, kind,
// message} and translated to HTTP status codes at the facade boundary.
package apierr

import "fmt"

// Kind classifies an error the way §7 of the specification does.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindAuthFailed     Kind = "auth_failed"
	KindUpstream       Kind = "upstream"
	KindInternal       Kind = "internal"
)

// Error is the typed error propagated internally and translated once at the
// HTTP boundary.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func statusFor(k Kind) int {
	switch k {
	case KindInvalidRequest:
		return 400
	case KindAuthFailed:
		return 401
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindUpstream:
		return 502
	default:
		return 500
	}
}

func new_(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Status: statusFor(k), Message: msg, cause: cause}
}

func InvalidRequest(msg string, args ...any) *Error { return new_(KindInvalidRequest, fmt.Sprintf(msg, args...), nil) }
func NotFound(msg string, args ...any) *Error       { return new_(KindNotFound, fmt.Sprintf(msg, args...), nil) }
func Conflict(msg string, args ...any) *Error       { return new_(KindConflict, fmt.Sprintf(msg, args...), nil) }
func AuthFailed(msg string, args ...any) *Error     { return new_(KindAuthFailed, fmt.Sprintf(msg, args...), nil) }
func Upstream(msg string, cause error) *Error       { return new_(KindUpstream, msg, cause) }
func Internal(msg string, cause error) *Error       { return new_(KindInternal, msg, cause) }

// As extracts an *Error from err, returning ok=false for plain errors (which
// callers should treat as Internal).
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// StatusMessage renders the caller-facing {status, kind, message} shape.
// Upstream failures are redacted to a short summary per §7's propagation
// policy; validation/authorization errors are surfaced verbatim.
func StatusMessage(err error) (status int, kind Kind, message string) {
	if e, ok := As(err); ok {
		if e.Kind == KindUpstream {
			return e.Status, e.Kind, "upstream request failed: " + e.Message
		}
		return e.Status, e.Kind, e.Message
	}
	return 500, KindInternal, "internal error"
}
