// Package api provides the HTTP surface: handlers, routing, and
// standardized error responses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/middleware"
	"github.com/onnwee/urbanscape/internal/project"
	"github.com/onnwee/urbanscape/internal/storage"
)

// Error codes shared across handlers. Clients branch on the code, the
// message is for humans.
const (
	ErrCodeValidation      = "validation_error"
	ErrCodeAuthFailed      = "auth_failed"
	ErrCodeNotFound        = "not_found"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeInternal        = "internal_error"
	ErrCodeForbidden       = "forbidden"
	ErrCodeConflict        = "conflict"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnsupportedType = "unsupported_type"

	// Scenario kind restrictions: some operations only make sense on one
	// side of the regional/project split.
	ErrCodeRegionalProject = "not_allowed_in_regional_project"
	ErrCodeProjectScenario = "not_allowed_in_project_scenario"

	// Object storage was never configured for this deployment.
	ErrCodeStorageDisabled = "storage_disabled"
)

// ErrorResponse is the body of every non-2xx API response:
// {"error": {"code": "...", "message": "..."}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes status plus the standard JSON error body. Pass a ctx
// that went through middleware.SetErrorCode and the logging middleware
// will pick the code up on 4xx/5xx responses.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	body, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// WriteDomainError maps a domain error to its HTTP status and error code
// and writes the standard error body. Unknown errors become 500
// internal_error with a generic message so internals do not leak.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classifyDomainError(err)
	ctx := middleware.SetErrorCode(r.Context(), code)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "error", err)
	}
	WriteError(w, ctx, status, code, message)
}

func classifyDomainError(err error) (status int, code, message string) {
	var invalid *apperr.InvalidRequest
	var denied *apperr.AccessDenied
	var exists *apperr.AlreadyExists

	switch {
	case apperr.IsNotFound(err):
		return http.StatusNotFound, ErrCodeNotFound, err.Error()
	case errors.As(err, &denied):
		return http.StatusForbidden, ErrCodeForbidden, err.Error()
	case errors.As(err, &exists):
		return http.StatusConflict, ErrCodeConflict, err.Error()
	case errors.As(err, &invalid):
		return http.StatusBadRequest, ErrCodeValidation, err.Error()
	case errors.Is(err, apperr.ErrNotAllowedInRegionalProject):
		return http.StatusBadRequest, ErrCodeRegionalProject, err.Error()
	case errors.Is(err, apperr.ErrNotAllowedInProjectScenario):
		return http.StatusBadRequest, ErrCodeProjectScenario, err.Error()
	case errors.Is(err, storage.ErrUnsupportedType):
		return http.StatusBadRequest, ErrCodeUnsupportedType, err.Error()
	case errors.Is(err, project.ErrStorageDisabled):
		return http.StatusNotImplemented, ErrCodeStorageDisabled, err.Error()
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
	}
}

// StatusCodeMapping returns the HTTP status a given error code rides on.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeRegionalProject, ErrCodeProjectScenario, ErrCodeUnsupportedType:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeStorageDisabled:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
