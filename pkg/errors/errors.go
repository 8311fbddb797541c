// Package errors defines custom error types and error handling utilities for the invoicer service.
// It separates configuration failures, which are fatal, from validation and storage failures,
// which callers recover from locally.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/turtacn/invoicer/pkg/constants"
)

// Code identifies a class of application error.
type Code string

const (
	CodeConfiguration      Code = "configuration_error"
	CodeInvalidRequest     Code = "invalid_request"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeRateLimitExceeded  Code = "rate_limit_exceeded"
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeDecryption         Code = "decryption_failed"
	CodeInternal           Code = "internal_error"
)

// ================================================================================
// AppError
// ================================================================================

// AppError represents a structured application error
type AppError struct {
	code        Code
	httpStatus  int
	description string
	cause       error
	metadata    map[string]interface{}
}

// New creates a new AppError with the specified parameters
func New(code Code, httpStatus int, description string) *AppError {
	return &AppError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
	}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.description, e.cause)
	}
	return e.description
}

// Code returns the application error code
func (e *AppError) Code() Code {
	return e.code
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.httpStatus
}

// Description returns the error description
func (e *AppError) Description() string {
	return e.description
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches on code so that wrapped copies of a sentinel compare equal to it.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.code == t.code && e.description == t.description
}

// WithCause returns a copy of the error carrying cause.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.cause = cause
	return &cp
}

// WithMetadata returns a copy of the error with an additional metadata entry.
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	cp := *e
	cp.metadata = make(map[string]interface{}, len(e.metadata)+1)
	for k, v := range e.metadata {
		cp.metadata[k] = v
	}
	cp.metadata[key] = value
	return &cp
}

// Metadata returns all metadata
func (e *AppError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Sentinels
// ================================================================================

var (
	// ErrMissingSecretKey is a configuration error and fatal at startup.
	ErrMissingSecretKey = New(CodeConfiguration, http.StatusInternalServerError, "application secret key is not configured")

	// ErrDecryption is returned for malformed blobs, bad IV length, and padding or tag failures.
	ErrDecryption = New(CodeDecryption, http.StatusBadRequest, "the payload is invalid")

	// ErrInvalidClaims is returned when claims cannot form a valid token.
	ErrInvalidClaims = New(CodeInvalidRequest, http.StatusBadRequest, "token claims are invalid")

	// ErrStorageUnavailable signals that the rate limit record could not be opened or locked.
	ErrStorageUnavailable = New(CodeStorageUnavailable, http.StatusServiceUnavailable, "rate limit storage is unavailable")

	// ErrDatabaseUnavailable wraps failures of the user and audit tables.
	ErrDatabaseUnavailable = New(CodeStorageUnavailable, http.StatusServiceUnavailable, "database is unavailable")

	ErrUnauthenticated    = New(CodeUnauthenticated, http.StatusUnauthorized, constants.MessageUnauthenticated)
	ErrInvalidSignature   = New(CodeForbidden, http.StatusForbidden, constants.MessageInvalidSignedURL)
	ErrNotFound           = New(CodeNotFound, http.StatusNotFound, "resource not found")
	ErrInternal           = New(CodeInternal, http.StatusInternalServerError, "An unexpected error occurred")
	ErrInvalidCredentials = New(CodeUnauthenticated, http.StatusUnprocessableEntity, "These credentials do not match our records.")
)

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) *AppError {
	return New(CodeInvalidRequest, http.StatusBadRequest, message)
}

// ErrTooManyRequests creates the 429 error carrying the limiter policy's message.
func ErrTooManyRequests(message string) *AppError {
	return New(CodeRateLimitExceeded, http.StatusTooManyRequests, message)
}

// ErrConfiguration creates a configuration error for the named setting.
func ErrConfiguration(setting string, reason string) *AppError {
	return New(CodeConfiguration, http.StatusInternalServerError,
		fmt.Sprintf("invalid configuration for %s: %s", setting, reason)).
		WithMetadata("setting", setting)
}

// ================================================================================
// Helpers
// ================================================================================

// Is is errors.Is re-exported so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As re-exported.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// AsAppError attempts to extract an AppError from the chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus returns the HTTP status carried by err, defaulting to 500.
func HTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.httpStatus != 0 {
		return appErr.httpStatus
	}
	return http.StatusInternalServerError
}

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// ToErrorResponse converts any error to a client safe response body.
func ToErrorResponse(err error) *ErrorResponse {
	if appErr, ok := AsAppError(err); ok && appErr.httpStatus < http.StatusInternalServerError {
		return &ErrorResponse{Message: appErr.description}
	}
	return &ErrorResponse{Message: ErrInternal.description}
}

// ShouldLogError determines if an error should be logged at error level
func ShouldLogError(err error) bool {
	return HTTPStatus(err) >= http.StatusInternalServerError
}
