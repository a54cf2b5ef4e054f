package flowcloud

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultVerifyPath is where partner servers answer challenges.
	DefaultVerifyPath = "/flowcloud-auth"
	// DefaultChallengeTimeout bounds the outbound challenge round trip.
	DefaultChallengeTimeout = 5 * time.Second

	challengeBytes       = 32
	minChallengeLen      = 32
	maxChallengeLen      = 256
	maxChallengeRespSize = 1 << 10
)

// OriginVerifierConfig configures an OriginVerifier.
type OriginVerifierConfig struct {
	Secret           string
	VerifyPath       string        // default DefaultVerifyPath
	MaxSkew          time.Duration // default DefaultMaxSkew
	ChallengeTimeout time.Duration // default DefaultChallengeTimeout
	HTTPClient       *http.Client
	Now              func() time.Time
}

// OriginVerifier establishes that a calling origin holds the shared secret
// without the secret crossing the network. It is stateless apart from its
// configuration and safe for concurrent use.
type OriginVerifier struct {
	secret     string
	verifyPath string
	maxSkew    time.Duration
	timeout    time.Duration
	client     *http.Client
	now        func() time.Time
}

// NewOriginVerifier creates an OriginVerifier, filling in defaults for
// zero-valued fields.
func NewOriginVerifier(cfg OriginVerifierConfig) *OriginVerifier {
	v := &OriginVerifier{
		secret:     cfg.Secret,
		verifyPath: cfg.VerifyPath,
		maxSkew:    cfg.MaxSkew,
		timeout:    cfg.ChallengeTimeout,
		client:     cfg.HTTPClient,
		now:        cfg.Now,
	}

	if v.verifyPath == "" {
		v.verifyPath = DefaultVerifyPath
	}
	if !strings.HasPrefix(v.verifyPath, "/") {
		v.verifyPath = "/" + v.verifyPath
	}
	if v.maxSkew <= 0 {
		v.maxSkew = DefaultMaxSkew
	}
	if v.timeout <= 0 {
		v.timeout = DefaultChallengeTimeout
	}
	if v.client == nil {
		v.client = &http.Client{
			Timeout: v.timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if v.now == nil {
		v.now = time.Now
	}

	return v
}

// Configured reports whether a shared secret is set.
func (v *OriginVerifier) Configured() bool {
	return v.secret != ""
}

// IsSystemKey reports whether candidate equals the shared secret, in
// constant time. It is always false when no secret is configured.
func (v *OriginVerifier) IsSystemKey(candidate string) bool {
	if !v.Configured() || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(v.secret), []byte(candidate)) == 1
}

// VerifyPath returns the path challenges are sent to and answered on.
func (v *OriginVerifier) VerifyPath() string {
	return v.verifyPath
}

// VerifyTimestamped checks a caller-initiated signed request.
//
// The payload is "{date}:{resourceID}" and must be signed with the shared
// secret. The timestamp must be within MaxSkew of now in either direction;
// the bound is inclusive. A verified request can be replayed inside the
// window.
func (v *OriginVerifier) VerifyTimestamped(resourceID, date, signature string) error {
	if !v.Configured() {
		return fmt.Errorf("verify timestamped: %w", ErrNotConfigured)
	}

	if date == "" || signature == "" {
		return fmt.Errorf("verify timestamped: missing date or signature: %w", ErrSignatureInvalid)
	}

	ts, err := parseTimestamp(date)
	if err != nil {
		return fmt.Errorf("verify timestamped: %w: %w", ErrSignatureInvalid, err)
	}

	skew := v.now().Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return fmt.Errorf("verify timestamped: skew %s exceeds %s: %w", skew, v.maxSkew, ErrRequestExpired)
	}

	payload := TimestampPayload(ts.UnixMilli(), resourceID)
	if !Verify(v.secret, payload, signature) {
		return fmt.Errorf("verify timestamped: %w", ErrSignatureInvalid)
	}

	return nil
}

// VerifyChallenge sends a fresh challenge to origin's verify endpoint and
// checks the answer against a locally computed HMAC.
//
// The request carries the challenge both as the X-Flowcloud-Challenge
// header and the challenge query parameter. Any transport failure, non-2xx
// status or mismatched answer denies. The call is bounded by
// ChallengeTimeout and by ctx.
func (v *OriginVerifier) VerifyChallenge(ctx context.Context, origin string) error {
	if !v.Configured() {
		return fmt.Errorf("verify challenge: %w", ErrNotConfigured)
	}

	target, err := v.challengeURL(origin)
	if err != nil {
		return fmt.Errorf("verify challenge: %w", err)
	}

	challenge, err := NewChallenge()
	if err != nil {
		return fmt.Errorf("verify challenge: %w", err)
	}

	q := target.Query()
	q.Set("challenge", challenge)
	target.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("verify challenge: build request: %w", ErrVerificationTransport)
	}
	req.Header.Set(HeaderChallenge, challenge)

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("verify challenge: %w: %w", ErrVerificationTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("verify challenge: origin answered %d: %w", resp.StatusCode, ErrChallengeFailed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChallengeRespSize))
	if err != nil {
		return fmt.Errorf("verify challenge: read answer: %w: %w", ErrVerificationTransport, err)
	}

	answer := string(bytes.TrimSpace(body))
	if !Verify(v.secret, challenge, answer) {
		return fmt.Errorf("verify challenge: %w", ErrChallengeFailed)
	}

	slog.Debug("origin verified", "origin", target.Host)
	return nil
}

// Respond answers a challenge addressed to this server.
func (v *OriginVerifier) Respond(challenge string) (string, error) {
	if !v.Configured() {
		return "", fmt.Errorf("respond: %w", ErrNotConfigured)
	}
	return RespondChallenge(v.secret, challenge)
}

// RespondChallenge returns Sign(secret, challenge) after checking the
// challenge is 32 to 256 hex characters. Restricting the alphabet keeps the
// verify endpoint from signing timestamped payloads, which contain ':'.
func RespondChallenge(secret, challenge string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("respond challenge: %w", ErrNotConfigured)
	}
	if !IsValidChallenge(challenge) {
		return "", fmt.Errorf("respond challenge: malformed challenge: %w", ErrInvalidInput)
	}
	return Sign(secret, challenge), nil
}

// IsValidChallenge reports whether s has the shape of a challenge token.
func IsValidChallenge(s string) bool {
	if len(s) < minChallengeLen || len(s) > maxChallengeLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && len(s)%2 == 0
}

// NewChallenge returns a fresh hex-encoded random challenge.
func NewChallenge() (string, error) {
	b := make([]byte, challengeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("new challenge: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// challengeURL validates origin as scheme://host[:port] and appends the
// verify path.
func (v *OriginVerifier) challengeURL(origin string) (*url.URL, error) {
	if origin == "" {
		return nil, fmt.Errorf("empty origin: %w", ErrOriginDenied)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", ErrOriginDenied)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported origin scheme %q: %w", u.Scheme, ErrOriginDenied)
	}

	if u.Host == "" || u.User != nil || (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("origin is not scheme://host[:port]: %w", ErrOriginDenied)
	}

	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: v.verifyPath}, nil
}
