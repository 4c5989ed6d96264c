package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error so the transport layer can map it without
// inspecting messages.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstreamTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	default:
		return "internal"
	}
}

// Error is the tagged error returned by use cases.
type Error struct {
	Kind Kind
	Msg  string
	Err  error

	sentinel bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the per-kind sentinels, so errors.Is(err, ErrConflict) holds for
// every conflict regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.sentinel && t.Kind == e.Kind
}

func sentinel(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg, sentinel: true} }

var (
	// Kind sentinels
	ErrInternal        = sentinel(KindInternal, "internal error")
	ErrValidation      = sentinel(KindValidation, "validation failed")
	ErrAuth            = sentinel(KindAuth, "authentication failed")
	ErrForbidden       = sentinel(KindForbidden, "forbidden")
	ErrNotFound        = sentinel(KindNotFound, "entity not found")
	ErrConflict        = sentinel(KindConflict, "conflict")
	ErrUpstreamTimeout = sentinel(KindUpstreamTimeout, "upstream timeout")

	// Common domain errors
	ErrCodeNotFound        = &Error{Kind: KindNotFound, Msg: "access code not found"}
	ErrCodeUsed            = &Error{Kind: KindConflict, Msg: "access code has already been used or expired"}
	ErrCodeNotPending      = &Error{Kind: KindConflict, Msg: "access code is not awaiting activation"}
	ErrDuplicateCode       = &Error{Kind: KindConflict, Msg: "access code already exists"}
	ErrPlanNotFound        = &Error{Kind: KindNotFound, Msg: "plan not found"}
	ErrTransactionNotFound = &Error{Kind: KindNotFound, Msg: "transaction not found"}
	ErrExclusionNotFound   = &Error{Kind: KindNotFound, Msg: "exclusion not found"}
	ErrExclusionExists     = &Error{Kind: KindConflict, Msg: "exclusion already exists"}
	ErrAdminNotFound       = &Error{Kind: KindNotFound, Msg: "admin not found"}
	ErrAdminExists         = &Error{Kind: KindConflict, Msg: "admin already exists"}
	ErrUnauthenticated     = &Error{Kind: KindAuth, Msg: "authentication required"}
	ErrInvalidCredentials  = &Error{Kind: KindAuth, Msg: "invalid credentials"}
	ErrTooManyAttempts     = &Error{Kind: KindAuth, Msg: "too many attempts, try again later"}
	ErrInvalidArgument     = &Error{Kind: KindValidation, Msg: "invalid argument"}
	ErrInvalidExecContext  = &Error{Kind: KindInternal, Msg: "invalid execution context"}
	ErrOperationFailed     = &Error{Kind: KindInternal, Msg: "operation failed"}
	ErrReadDatabaseRow     = &Error{Kind: KindInternal, Msg: "failed to read database row"}
)

func newf(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error { return newf(KindValidation, format, args...) }
func Authf(format string, args ...any) error       { return newf(KindAuth, format, args...) }
func Forbiddenf(format string, args ...any) error  { return newf(KindForbidden, format, args...) }
func NotFoundf(format string, args ...any) error   { return newf(KindNotFound, format, args...) }
func Conflictf(format string, args ...any) error   { return newf(KindConflict, format, args...) }

// Wrap tags err with a kind, keeping it in the chain.
func Wrap(k Kind, msg string, err error) error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// KindOf reports the kind of the first tagged error in the chain.
// Untagged errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the public message for err. Internal errors never leak
// their cause.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return ErrInternal.Msg
}
