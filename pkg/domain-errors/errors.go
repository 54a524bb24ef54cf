// Package domainerrors defines the typed error vocabulary returned by domain
// services. Stores and infrastructure return sentinel errors
// (pkg/platform/sentinel); services translate those into coded domain errors so
// callers can branch on the code without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeSelfConnection rejects a proposal where initiator and target are the
	// same member.
	CodeSelfConnection Code = "self_connection"
	// CodeDuplicatePair rejects a proposal when an active record already exists
	// for the unordered member pair.
	CodeDuplicatePair Code = "duplicate_pair"
	// CodeInvalidTransition rejects an event not legal from the record's
	// current status.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeNotFound signals a missing member or connection record.
	CodeNotFound Code = "not_found"
	// CodeConcurrentConflict signals an optimistic check failure; the caller
	// may retry the whole operation.
	CodeConcurrentConflict Code = "concurrent_conflict"
	// CodeStorage signals the underlying persistence failed; the operation is
	// not retried automatically.
	CodeStorage Code = "storage_failure"

	CodeBadRequest Code = "bad_request"
	CodeTimeout    Code = "timeout"
	CodeInternal   Code = "internal"
)

// Error carries a code alongside the message and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a coded domain error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving it for
// errors.Is/errors.As chains.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Retryable reports whether the caller may safely retry the same request.
// Only optimistic-concurrency conflicts qualify; every other code requires
// different input or is permanent for that request.
func Retryable(err error) bool {
	return HasCode(err, CodeConcurrentConflict)
}

// ToHTTPStatus maps a code to the HTTP status the transport layer should emit.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeSelfConnection, CodeBadRequest:
		return http.StatusBadRequest
	case CodeDuplicatePair, CodeConcurrentConflict:
		return http.StatusConflict
	case CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeStorage, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
