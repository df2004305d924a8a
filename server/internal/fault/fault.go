package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry, fallback and HTTP mapping decisions.
type Kind string

const (
	KindMissingState     Kind = "MISSING_STATE"
	KindMissingSignal    Kind = "MISSING_SIGNAL"
	KindOutOfRange       Kind = "OUT_OF_RANGE"
	KindInvalidCapacity  Kind = "INVALID_CAPACITY"
	KindInvalidArgument  Kind = "INVALID_ARGUMENT"
	KindModelTimeout     Kind = "MODEL_TIMEOUT"
	KindModelUnavailable Kind = "MODEL_UNAVAILABLE"
	KindUnavailable      Kind = "UNAVAILABLE"
	KindStorage          Kind = "STORAGE"
	KindConflict         Kind = "CONFLICT"
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindForbidden        Kind = "FORBIDDEN"
	KindInternal         Kind = "INTERNAL"
)

// Sentinels for errors.Is checks.
var (
	ErrMissingState  = &Error{Kind: KindMissingState, Message: "hospital state not found"}
	ErrMissingSignal = &Error{Kind: KindMissingSignal, Message: "environmental signal not found"}
)

// Error is a classified error with an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// MissingState reports that no state exists for hospitalID.
func MissingState(hospitalID string) *Error {
	return &Error{Kind: KindMissingState, Message: fmt.Sprintf("no state recorded for hospital %q", hospitalID)}
}

// MissingSignal reports that no environmental signal exists for date.
func MissingSignal(date string) *Error {
	return &Error{Kind: KindMissingSignal, Message: fmt.Sprintf("no environmental signal for %s", date)}
}

// OutOfRange reports a field whose value lies outside its contract range.
func OutOfRange(field string, value float64, lo, hi float64) *Error {
	return &Error{Kind: KindOutOfRange, Message: fmt.Sprintf("%s=%g outside [%g, %g]", field, value, lo, hi)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// IsModelFailure reports whether err is a model timeout or outage, the only
// failures that may be answered with a stale briefing.
func IsModelFailure(err error) bool {
	return Is(err, KindModelTimeout) || Is(err, KindModelUnavailable)
}

// HTTPStatus maps err to the status code returned by the REST API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindMissingState, KindMissingSignal:
		return http.StatusUnprocessableEntity
	case KindOutOfRange, KindInvalidCapacity, KindInvalidArgument:
		return http.StatusBadRequest
	case KindModelTimeout, KindModelUnavailable, KindUnavailable:
		return http.StatusServiceUnavailable
	case KindConflict:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
