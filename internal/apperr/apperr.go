// Package apperr defines the error taxonomy surfaced by the service layer and
// how each kind of error maps onto an HTTP response.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfeidau/loadboard/internal/store"
)

// Code identifies a class of error.
type Code string

const (
	CodeUnauthenticated   Code = "unauthenticated"
	CodeForbidden         Code = "forbidden"
	CodeNotFound          Code = "not_found"
	CodeInvalidTransition Code = "invalid_transition"
	CodeValidationFailed  Code = "validation_failed"
	CodeStorageFailure    Code = "storage_failure"
)

var httpStatusMap = map[Code]int{
	CodeUnauthenticated:   http.StatusUnauthorized,
	CodeForbidden:         http.StatusForbidden,
	CodeNotFound:          http.StatusNotFound,
	CodeInvalidTransition: http.StatusConflict,
	CodeValidationFailed:  http.StatusUnprocessableEntity,
	CodeStorageFailure:    http.StatusInternalServerError,
}

// Error is a classified service error.
//
// Message is safe to return to the caller. Detail carries diagnostics such as
// the required roles or the org that was denied and is only ever logged.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the response status for the error code.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatusMap[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Is matches another *Error by code so callers can use errors.Is with the
// sentinel values below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons by code.
var (
	ErrUnauthenticated   = &Error{Code: CodeUnauthenticated}
	ErrForbidden         = &Error{Code: CodeForbidden}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrValidationFailed  = &Error{Code: CodeValidationFailed}
	ErrStorageFailure    = &Error{Code: CodeStorageFailure}
)

// Unauthenticated reports an absent or malformed credential. The message is
// deliberately generic.
func Unauthenticated(detail string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: "authentication required", Detail: detail}
}

// Forbidden reports a denied action. detail is logged, never returned.
func Forbidden(message, detail string) *Error {
	return &Error{Code: CodeForbidden, Message: message, Detail: detail}
}

// NotFound is returned both for missing entities and for entities the caller
// cannot see.
func NotFound(kind string) *Error {
	return &Error{Code: CodeNotFound, Message: kind + " not found"}
}

// InvalidTransition names the action and the status it requires.
func InvalidTransition(action, current string, required ...string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot %s load in status %s, requires %v", action, current, required),
	}
}

// GuardFailed reports a transition whose source state is right but whose
// precondition is not met.
func GuardFailed(action, reason string) *Error {
	return &Error{Code: CodeInvalidTransition, Message: fmt.Sprintf("cannot %s load: %s", action, reason)}
}

// ValidationFailed carries per-field messages.
func ValidationFailed(message string, fields map[string]string) *Error {
	return &Error{Code: CodeValidationFailed, Message: message, Fields: fields}
}

// StorageFailure wraps a repository or collaborator error.
func StorageFailure(op string, err error) *Error {
	return &Error{Code: CodeStorageFailure, Message: "storage failure", Detail: op, Err: err}
}

// FromStore classifies a store error: ErrNotFound becomes NotFound(kind),
// anything else a StorageFailure. An *Error is returned unchanged.
func FromStore(kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, store.ErrNotFound) {
		return NotFound(kind)
	}
	return StorageFailure(op, err)
}

// As extracts an *Error, classifying anything else as a StorageFailure.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return StorageFailure("unclassified", err)
}

// CodeOf returns the code of err, or CodeStorageFailure for unclassified errors.
func CodeOf(err error) Code {
	return As(err).Code
}
