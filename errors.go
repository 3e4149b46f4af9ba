package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/warden/internal/auth"
	"github.com/example/warden/internal/library"
	"github.com/example/warden/internal/store"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// writeInternal logs err and answers with a generic 500 so storage details
// never reach the client.
func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

// writeNotFoundOr renders 404 with message for the not-found sentinels and
// falls back to writeInternal for anything else.
func writeNotFoundOr(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, library.ErrNotFound), errors.Is(err, library.ErrNoReview):
		writeError(w, http.StatusNotFound, "NOT_FOUND", message)
	default:
		writeInternal(w, r, err)
	}
}

// registerError maps auth.Service.Register failures onto HTTP.
func registerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUsernameTaken), errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "USER_EXISTS", "User already exists")
	case errors.Is(err, auth.ErrMissingFields), errors.Is(err, auth.ErrInvalidRole), errors.Is(err, auth.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Unable to register user.")
	default:
		writeInternal(w, r, err)
	}
}
