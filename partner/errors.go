package partner

import (
	"errors"
	"net/http"
	"strconv"
)

// Errors for client configuration and input.
var (
	ErrEndpointRequired = errors.New("endpoint is required")
	ErrSecretRequired   = errors.New("shared secret is required")
	ErrEmptyPath        = errors.New("path is required")
	ErrKeyRequired      = errors.New("access key is required")
)

// APIError represents an error response from the gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return "server error: " + strconv.Itoa(e.StatusCode)
	}
	return "server error: " + strconv.Itoa(e.StatusCode) + " - " + e.Body
}

// Is reports whether target is an *APIError with the same StatusCode.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.StatusCode == e.StatusCode
}

// Sentinel errors for common gateway responses. Use errors.Is to match.
var (
	// ErrNotFound covers missing files, invalid access keys and every
	// access gate denial (404).
	ErrNotFound = &APIError{StatusCode: http.StatusNotFound}

	// ErrUnauthorized is returned when a capability link has no key (401).
	ErrUnauthorized = &APIError{StatusCode: http.StatusUnauthorized}

	// ErrForbidden is returned when origin verification or the system
	// key check fails (403).
	ErrForbidden = &APIError{StatusCode: http.StatusForbidden}
)

func parseServerError(statusCode int, body []byte) error {
	return &APIError{
		StatusCode: statusCode,
		Body:       string(body),
	}
}
