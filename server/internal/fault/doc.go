// Package fault defines the typed errors raised by SurgeCast components and
// their mapping to HTTP status codes.
//
// Every error carries a Kind. errors.Is matches two *Error values when their
// kinds are equal, so callers test against the sentinels:
//
//	if errors.Is(err, fault.ErrMissingState) { ... }
//
// or against an arbitrary kind with fault.Is(err, fault.KindOutOfRange).
package fault
