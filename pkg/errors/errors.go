// Package errors defines the engine's error taxonomy and the HTTP mapping
// for the front end.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrParse means a query or input payload was malformed.
	ErrParse = errors.New("parse error")
	// ErrNotSupported means an unknown media type or missing plugin.
	ErrNotSupported = errors.New("not supported")
	// ErrDataMisaligned means an internal invariant was broken: a duplicate
	// in a posting list, a validator miss, an invalid postings offset. It is
	// fatal to the write session that raises it.
	ErrDataMisaligned = errors.New("data misaligned")
	// ErrIO wraps an underlying filesystem error, retried once if transient.
	ErrIO = errors.New("io error")
	// ErrConflictingWrite means the collection's lock file is held by
	// another writer.
	ErrConflictingWrite = errors.New("conflicting write")
	// ErrNotFound means the requested collection, document, or batch does
	// not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized means the caller's API key failed validation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited means the caller exceeded its request budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError pairs a sentinel with caller-facing detail and an HTTP status.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel with a caller-facing message and HTTP status.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

// Newf is New with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...), StatusCode: statusCode}
}

// HTTPStatusCode maps an error from the core to a front-end status code.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotSupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrConflictingWrite):
		return http.StatusConflict
	case errors.Is(err, ErrDataMisaligned), errors.Is(err, ErrIO):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
