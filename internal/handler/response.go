package handler

// RESPONSE HELPERS
//
// Every response from the API is JSON. Successful bodies always carry
// "success": true; error bodies have one shape:
//
//	{"success": false, "error": "validation_error", "message": "password required"}
//
// "error" is a machine-readable kind, "message" is free text for people.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/auth"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sets headers and status before the body; once the body starts
// streaming, header changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps an error kind to its HTTP status and wire name.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrAuthentication):
		return http.StatusBadRequest, "invalid_credentials"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusForbidden, "unauthenticated"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrTooManyRequests):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusInternalServerError, "upstream_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError converts err into an ErrorResponse.
//
// Only *apperror.AppError messages reach the client. Anything else is logged
// and answered with a generic 500, since raw errors can carry SQL, file
// paths or connection strings.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, kind := errorStatus(err)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Server error",
		})
		return
	}

	if status >= 500 {
		logger.Error("request failed", slog.String("kind", kind), slog.String("error", err.Error()))
	}
	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are ignored;
// the front end sends more than each endpoint reads.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body", "request body too large")
		}
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// validationError turns ozzo-validation's field map into an AppError naming
// the first failing field in declaration order.
func validationError(err error, order ...string) error {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	for _, field := range order {
		if fe, ok := fieldErrs[field]; ok {
			return apperror.ValidationFailed(field, field+": "+fe.Error())
		}
	}
	for field, fe := range fieldErrs {
		return apperror.ValidationFailed(field, field+": "+fe.Error())
	}
	return err
}

// RejectUnauthenticated is the auth.Rejecter for protected routes. A missing
// token and a bad one get the same 403 "Unauthorized".
func RejectUnauthenticated(logger *slog.Logger) auth.Rejecter {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if !errors.Is(err, auth.ErrNoToken) {
			logger.Debug("rejected session token", slog.String("error", err.Error()))
		}
		writeError(w, logger, apperror.Unauthenticated())
	}
}

// RejectRateLimited writes the 429 for a throttled request.
func RejectRateLimited(logger *slog.Logger) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, logger, apperror.TooManyRequests())
	}
}

// NotFound answers unmatched routes in the common error shape.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Route not found"})
}
