// Package errors defines the coded error taxonomy shared by the reconciliation
// and verification engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category. Codes are stable and safe to match on.
type Code string

// Error codes
const (
	ErrUpstream     Code = "UPSTREAM"
	ErrDownload     Code = "DOWNLOAD"
	ErrParse        Code = "PARSE"
	ErrInvalidRange Code = "INVALID_RANGE"
	ErrCheck        Code = "CHECK"
	ErrStore        Code = "STORE"
	ErrInvalidInput Code = "INVALID_INPUT"
	ErrNotTracked   Code = "NOT_TRACKED"
)

// Error is a structured error with a category code and optional details
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches another *Error by code
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error with the given code and message
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Details: make(map[string]interface{})}
}

// Newf creates an error with a formatted message
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err with a code and message. Returns nil when err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Details: make(map[string]interface{}), Wrapped: err}
}

// Upstream reports a non-2xx response from an API resource. The response
// body is kept as diagnostic text.
func Upstream(op, url string, status int, body string) *Error {
	return Newf(ErrUpstream, "%s: HTTP %d: %s", op, status, body).
		WithDetail("url", url).
		WithDetail("status", status)
}

// Download reports a failure while streaming an asset
func Download(name, url string, cause error) *Error {
	if cause == nil {
		return New(ErrDownload, "download "+name).WithDetail("url", url)
	}
	return Wrap(cause, ErrDownload, "download "+name).WithDetail("url", url)
}

// Parse reports malformed input that could not be recovered
func Parse(what string, cause error) *Error {
	if cause == nil {
		return New(ErrParse, "malformed "+what)
	}
	return Wrap(cause, ErrParse, "malformed "+what)
}

// InvalidRange reports commit identifiers unusable for a comparison request
func InvalidRange(oldSHA, newSHA string) *Error {
	return Newf(ErrInvalidRange, "invalid commit range %q...%q", oldSHA, newSHA)
}

// Check reports an item that could not be evaluated during reconciliation
func Check(coordinate string, cause error) *Error {
	if cause == nil {
		return New(ErrCheck, "check "+coordinate).WithDetail("coordinate", coordinate)
	}
	return Wrap(cause, ErrCheck, "check "+coordinate).WithDetail("coordinate", coordinate)
}

// Store reports a failure at the persistence boundary
func Store(path string, cause error) *Error {
	if cause == nil {
		return New(ErrStore, "store "+path).WithDetail("path", path)
	}
	return Wrap(cause, ErrStore, "store "+path).WithDetail("path", path)
}

// Is reports whether any error in err's chain carries code
func Is(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// StatusCode returns the upstream HTTP status carried by err, or 0
func StatusCode(err error) int {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if status, ok := e.Details["status"].(int); ok {
				return status
			}
			err = e.Wrapped
			continue
		}
		return 0
	}
	return 0
}

// IsNotFound reports whether err is an upstream 404
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
