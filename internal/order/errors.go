package order

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories of the workflow.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindUnauthorized       Kind = "unauthorized"
	KindConflict           Kind = "conflict"
	KindStorage            Kind = "storage"
	KindNotificationFailed Kind = "notification_failed"
)

// Sentinels usable with errors.Is.
var (
	ErrValidation         = &Error{kind: KindValidation, message: "validation failed"}
	ErrNotFound           = &Error{kind: KindNotFound, message: "order not found"}
	ErrUnauthorized       = &Error{kind: KindUnauthorized, message: "not authorized"}
	ErrConflict           = &Error{kind: KindConflict, message: "order already decided"}
	ErrStorage            = &Error{kind: KindStorage, message: "storage failure"}
	ErrNotificationFailed = &Error{kind: KindNotificationFailed, message: "notification failed"}
)

// Error is a categorised workflow error.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.kind == t.kind
}

// Kind returns the error category.
func (e *Error) Kind() Kind {
	if e == nil {
		return ""
	}
	return e.kind
}

// Code is picked up by the router's err_code log field.
func (e *Error) Code() string {
	return string(e.Kind())
}

// Refused reports whether the error answers a request the workflow turned
// down, as opposed to a failure of the shop itself.
func (e *Error) Refused() bool {
	switch e.Kind() {
	case KindValidation, KindNotFound, KindUnauthorized, KindConflict:
		return true
	}
	return false
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

// Validation reports malformed input.
func Validation(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

// NotFound reports a missing order.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// Unauthorized reports a principal that may not perform the operation.
func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, nil, format, args...)
}

// Conflict reports a transition that is not allowed from the current status.
func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, nil, format, args...)
}

// Storage wraps a persistence failure.
func Storage(cause error, format string, args ...any) *Error {
	return newError(KindStorage, cause, format, args...)
}

// NotificationFailed wraps a messaging gateway failure.
func NotificationFailed(cause error, format string, args ...any) *Error {
	return newError(KindNotificationFailed, cause, format, args...)
}

// KindOf returns the category of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return ""
}
