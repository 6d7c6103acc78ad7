// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindSettlement
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindSettlement:
		return "settlement"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Msg: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

func Settlement(msg string, err error) error {
	return &Error{Kind: KindSettlement, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindUnknown for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// HTTPStatus maps an error to the status code handlers should respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindSettlement:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
