// Package httpx provides HTTP response utilities.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/feedflow/feedflow/internal/shared"
)

// StatusOf maps a domain error to its HTTP status.
func StatusOf(err error) int {
	var conflict *shared.ConflictError
	var shortfall *shared.StockShortfallError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &shortfall), errors.Is(err, shared.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.As(err, &conflict), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// IsServerError reports whether err maps to a 5xx response.
func IsServerError(err error) bool {
	return StatusOf(err) >= http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	problem := ProblemDetail{Title: http.StatusText(status), Status: status}
	if status < http.StatusInternalServerError {
		problem.Detail = err.Error()
	}

	var conflict *shared.ConflictError
	var shortfall *shared.StockShortfallError
	switch {
	case errors.As(err, &shortfall):
		problem.Title = "Insufficient Stock"
		problem.Errors = shortfall.Items
	case errors.As(err, &conflict):
		problem.Current = conflict.Current
	case status == http.StatusBadRequest:
		problem.Title = "Validation Failed"
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}
