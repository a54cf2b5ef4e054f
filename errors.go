package flowcloud

import "errors"

var (
	// ErrNotFound is returned when a file or access key does not exist
	ErrNotFound = errors.New("not found")
	// ErrInternal is returned when an internal error occurs
	ErrInternal = errors.New("internal error")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned when a privileged credential is wrong
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotConfigured is returned when the shared secret is absent.
	ErrNotConfigured = errors.New("shared secret not configured")
	// ErrOriginDenied is returned when the calling origin is missing or not allow-listed.
	ErrOriginDenied = errors.New("origin denied")
	// ErrSignatureInvalid is returned when a timestamped signature does not match.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrChallengeFailed is returned when an origin answers a challenge incorrectly.
	ErrChallengeFailed = errors.New("challenge failed")
	// ErrRequestExpired is returned when a signed request is outside the freshness window.
	ErrRequestExpired = errors.New("request expired")
	// ErrPathUnsafe is returned for traversal attempts and denylisted file names.
	ErrPathUnsafe = errors.New("path unsafe")
	// ErrVerificationTransport is returned when the outbound challenge call fails.
	ErrVerificationTransport = errors.New("verification transport error")
	// ErrKeyRequired is returned when a capability link is used without a key.
	ErrKeyRequired = errors.New("access key required")
)
