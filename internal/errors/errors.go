// Package errors provides a single structured error type shared by every
// subsystem (store, provider, billing, manager, monitor), so that a caller
// two layers up can branch on what went wrong without caring which package
// raised it.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies what went wrong. Every subsystem produces and recognizes
// the same set; there is no per-package error taxonomy.
type Kind int

const (
	Unknown Kind = iota
	NotFoundKind
	ConflictKind
	InsufficientCreditsKind
	QuotaExceededKind
	ProviderUnavailableKind
	TimeoutKind
	InvalidInputKind
)

func (k Kind) String() string {
	switch k {
	case NotFoundKind:
		return "not_found"
	case ConflictKind:
		return "conflict"
	case InsufficientCreditsKind:
		return "insufficient_credits"
	case QuotaExceededKind:
		return "quota_exceeded"
	case ProviderUnavailableKind:
		return "provider_unavailable"
	case TimeoutKind:
		return "timeout"
	case InvalidInputKind:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error is the structured error carried across package boundaries.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "store.CreateSession"
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func NotFound(op, message string) *Error          { return newErr(NotFoundKind, op, message, nil) }
func Conflict(op, message string) *Error          { return newErr(ConflictKind, op, message, nil) }
func InsufficientCredits(op, message string) *Error {
	return newErr(InsufficientCreditsKind, op, message, nil)
}
func QuotaExceeded(op, message string) *Error { return newErr(QuotaExceededKind, op, message, nil) }
func ProviderUnavailable(op, message string, err error) *Error {
	return newErr(ProviderUnavailableKind, op, message, err)
}
func Timeout(op, message string) *Error      { return newErr(TimeoutKind, op, message, nil) }
func InvalidInput(op, message string) *Error { return newErr(InvalidInputKind, op, message, nil) }

// Wrap attaches Op/Message context to an underlying error without losing it,
// classifying it Unknown unless the caller already knows better.
func Wrap(op, message string, err error) *Error {
	return newErr(Unknown, op, message, err)
}

// KindOf extracts the Kind from err, walking the unwrap chain. Returns
// Unknown if err is nil or carries no *Error in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err's Kind matches k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
