// Package apperr carries a failure kind alongside a caller-facing message so
// HTTP handlers can map service errors without knowing about storage sentinels.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindServer Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "server_error"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error { return New(KindValidation, msg, nil) }

func NotFound(msg string, err error) *Error { return New(KindNotFound, msg, err) }

func Forbidden(msg string, err error) *Error { return New(KindForbidden, msg, err) }

func Conflict(msg string, err error) *Error { return New(KindConflict, msg, err) }

func Server(msg string, err error) *Error { return New(KindServer, msg, err) }

// KindOf returns the kind of the first *Error in err's chain, KindServer otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

// Message returns the caller-facing message, hiding internal detail for unknown errors.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
