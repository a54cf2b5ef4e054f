package flowcloud

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	// HeaderDate carries the epoch-millisecond timestamp of a signed request.
	HeaderDate = "X-Flowcloud-Date"
	// HeaderSignature carries the hex HMAC of the timestamp payload.
	HeaderSignature = "X-Flowcloud-Signature"
	// HeaderChallenge carries a challenge to the origin's verify endpoint.
	HeaderChallenge = "X-Flowcloud-Challenge"
	// HeaderAccessKey carries the system key on privileged requests.
	HeaderAccessKey = "X-Access-Key"

	// DefaultMaxSkew is the freshness window for timestamped requests.
	DefaultMaxSkew = 5 * time.Minute
)

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed by secret.
func Sign(secret, payload string) string {
	return hex.EncodeToString(hmacSHA256([]byte(secret), []byte(payload)))
}

// Verify reports whether candidate is the HMAC-SHA256 of payload under
// secret. The candidate may be upper or lower case hex. Digests are compared
// with hmac.Equal, which only short-circuits on a length difference.
func Verify(secret, payload, candidate string) bool {
	got, err := hex.DecodeString(candidate)
	if err != nil {
		return false
	}
	want := hmacSHA256([]byte(secret), []byte(payload))
	return hmac.Equal(want, got)
}

// TimestampPayload builds the canonical payload of a timestamped request.
func TimestampPayload(timestamp int64, resourceID string) string {
	return strconv.FormatInt(timestamp, 10) + ":" + resourceID
}

// SignedRequest is the caller side of a timestamped request.
type SignedRequest struct {
	Timestamp int64
	Payload   string
	Signature string
}

// NewSignedRequest signs resourceID at time at.
//
// Example:
//
//	req := flowcloud.NewSignedRequest(secret, "docs/report.pdf", time.Now())
//	httpReq.Header.Set(flowcloud.HeaderDate, req.Date())
//	httpReq.Header.Set(flowcloud.HeaderSignature, req.Signature)
func NewSignedRequest(secret, resourceID string, at time.Time) SignedRequest {
	ts := at.UnixMilli()
	payload := TimestampPayload(ts, resourceID)
	return SignedRequest{
		Timestamp: ts,
		Payload:   payload,
		Signature: Sign(secret, payload),
	}
}

// Date returns the timestamp formatted for HeaderDate.
func (r SignedRequest) Date() string {
	return strconv.FormatInt(r.Timestamp, 10)
}

// parseTimestamp parses an epoch-millisecond header value. Only the
// canonical decimal form is accepted: no sign, padding or leading zeros.
func parseTimestamp(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	if strconv.FormatInt(ms, 10) != s {
		return time.Time{}, fmt.Errorf("parse timestamp: non-canonical value %q", s)
	}
	return time.UnixMilli(ms), nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
