package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/flowstate/flowcloud"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError writes the response for err. Messages are fixed per error
// kind; request paths and secrets never reach the body.
func HandleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flowcloud.ErrNotConfigured), errors.Is(err, flowcloud.ErrOriginDenied):
		slog.Warn("request denied", "error", err)
		writeDefaultNotFound(w)

	case errors.Is(err, flowcloud.ErrNotFound), errors.Is(err, flowcloud.ErrPathUnsafe):
		slog.Warn("request error", "error", err)
		WriteError(w, http.StatusNotFound, "not_found", "File not found")

	case errors.Is(err, flowcloud.ErrKeyRequired):
		slog.Warn("request error", "error", err)
		WriteError(w, http.StatusUnauthorized, "key_required", "Access key required")

	case errors.Is(err, flowcloud.ErrUnauthorized):
		slog.Warn("request denied", "error", err)
		WriteError(w, http.StatusForbidden, "unauthorized", "Invalid access key")

	case errors.Is(err, flowcloud.ErrRequestExpired):
		slog.Warn("verification failed", "error", err)
		WriteError(w, http.StatusForbidden, "request_expired", "Request expired")

	case errors.Is(err, flowcloud.ErrSignatureInvalid),
		errors.Is(err, flowcloud.ErrChallengeFailed),
		errors.Is(err, flowcloud.ErrVerificationTransport):
		slog.Warn("verification failed", "error", err)
		WriteError(w, http.StatusForbidden, "forbidden", "Origin verification failed")

	case errors.Is(err, flowcloud.ErrInvalidInput):
		slog.Warn("request error", "error", err)
		WriteError(w, http.StatusBadRequest, "invalid_input", "Invalid request")

	default:
		slog.Error("request error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// publicStatus maps err to the status of a capability-link response.
// Those responses carry no body, and an invalid key looks like a missing
// file.
func publicStatus(err error) int {
	switch {
	case errors.Is(err, flowcloud.ErrKeyRequired):
		return http.StatusUnauthorized
	case errors.Is(err, flowcloud.ErrNotFound),
		errors.Is(err, flowcloud.ErrPathUnsafe),
		errors.Is(err, flowcloud.ErrInvalidInput):
		return http.StatusNotFound
	default:
		slog.Error("public file error", "error", err)
		return http.StatusInternalServerError
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}
