// Package middleware carries the HTTP middleware chain: request IDs and
// panic recovery with the standard error envelope.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/SheetMetalConnect/metalfab-uns-simulator/internal/errors"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/observability"
)

// ErrorResponse aliases the standard envelope so handler tests can decode
// middleware output without importing the errors package.
type ErrorResponse = apperrors.HTTPErrorResponse

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID assigns each request an ID, honoring an incoming
// X-Request-ID header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Recovery converts a handler panic into a 500 with the standard error
// envelope instead of killing the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				observability.Logger().Error("handler panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				writeErrorResponse(w, apperrors.HTTPError{
					Code:      string(apperrors.CodeInternal),
					Message:   fmt.Sprintf("panic: %v", rec),
					RequestID: GetRequestID(r.Context()),
				}, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is the panic-recovery middleware under its routing name.
func ErrorHandler(next http.Handler) http.Handler { return Recovery(next) }

func writeErrorResponse(w http.ResponseWriter, e apperrors.HTTPError, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apperrors.HTTPErrorResponse{Error: e})
}

// WriteError renders any error with its mapped status and the request ID
// from the context.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	e := apperrors.HTTPError{
		Code:      string(code),
		Message:   err.Error(),
		RequestID: GetRequestID(r.Context()),
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		e.Message = appErr.Message
		e.Details = appErr.Details
	}
	writeErrorResponse(w, e, apperrors.HTTPStatus(code))
}
