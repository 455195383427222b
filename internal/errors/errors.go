// Package errors defines the application error taxonomy and its HTTP
// envelope. Commands and handlers classify failures with these codes so
// exit codes and HTTP statuses stay consistent.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for exit-code and HTTP-status mapping.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeConfig             Code = "CONFIG_ERROR"
	CodeNotFound           Code = "NOT_FOUND"
	CodeMethodNotAllowed   Code = "METHOD_NOT_ALLOWED"
	CodeExternalService    Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error is a classified application error.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches structured context to the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// New creates a classified error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewValidationError marks invalid input.
func NewValidationError(message string) *Error { return New(CodeValidation, message) }

// NewConfigError marks a configuration problem.
func NewConfigError(message string) *Error { return New(CodeConfig, message) }

// NewExternalServiceError marks a failure in a dependency such as the
// MQTT broker.
func NewExternalServiceError(message string) *Error { return New(CodeExternalService, message) }

// WrapInternal classifies an unexpected failure. The context is accepted
// so call sites can thread cancellation-aware details later without
// changing their shape.
func WrapInternal(_ context.Context, err error, message string) *Error {
	return Wrap(CodeInternal, err, message)
}

// CodeOf extracts the classification from any error chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPError is the wire shape of one error.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// HTTPErrorResponse is the envelope every error response uses.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPStatus maps a code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeConfig:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeExternalService:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
