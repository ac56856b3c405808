// Package errors defines the application error type shared between domain
// services and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Well-known application error codes returned in responses.
const (
	CodeValidation      = "INVALID_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyExists   = "ALREADY_EXISTS"
	CodeConflict        = "CONFLICT"
	CodeExpired         = "EXPIRED"
	CodeGone            = "GONE"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeUpstream        = "UPSTREAM_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

// ServiceError carries an application error code and the HTTP status the
// central handler should respond with.
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithCause attaches an underlying error for logging without changing the
// response body.
func (e *ServiceError) WithCause(err error) *ServiceError {
	clone := *e
	clone.cause = err
	return &clone
}

// New builds a ServiceError with an explicit code and status.
func New(code, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

func Validation(message string) *ServiceError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func Unauthorized(message string) *ServiceError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func Forbidden(message string) *ServiceError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func NotFound(message string) *ServiceError {
	return New(CodeNotFound, message, http.StatusNotFound)
}

func AlreadyExists(message string) *ServiceError {
	return New(CodeAlreadyExists, message, http.StatusConflict)
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, message, http.StatusConflict)
}

func Expired(message string) *ServiceError {
	return New(CodeExpired, message, http.StatusGone)
}

func Gone(message string) *ServiceError {
	return New(CodeGone, message, http.StatusGone)
}

func TooManyRequests(message string) *ServiceError {
	return New(CodeTooManyRequests, message, http.StatusTooManyRequests)
}

func Upstream(message string) *ServiceError {
	return New(CodeUpstream, message, http.StatusBadGateway)
}

func Internal(message string) *ServiceError {
	return New(CodeInternal, message, http.StatusInternalServerError)
}

// RateLimitExceeded reports the configured limit in the message body.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeTooManyRequests,
		fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window),
		http.StatusTooManyRequests)
}

// AsServiceError extracts a ServiceError from an error chain.
func AsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}
