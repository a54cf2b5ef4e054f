package flowcloud

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// tokenBytes gives 20 hex characters per token.
const tokenBytes = 10

// KeyStore persists per-path access keys.
// Implementations must be safe for concurrent use and must make each
// Append atomic with respect to concurrent Appends for any path.
type KeyStore interface {
	// Keys returns the keys issued for path in issue order.
	// An unknown path yields an empty slice and no error.
	Keys(ctx context.Context, path string) ([]AccessKey, error)

	// Append adds key to the set for path and persists it before returning.
	Append(ctx context.Context, path string, key AccessKey) error
}

// VaultConfig holds configuration options for Vault.
type VaultConfig struct {
	// TTL limits how long an issued key stays valid. Zero means forever.
	TTL time.Duration
	// Reuse makes Acquire hand out the newest valid key instead of issuing.
	Reuse bool
	Now   func() time.Time
}

// Vault issues and validates per-file capability tokens.
//
// A token is an opaque bearer capability: whoever holds a valid token for a
// path can read that path. Keys are append-only; there is no revocation.
type Vault struct {
	store KeyStore
	ttl   time.Duration
	reuse bool
	now   func() time.Time
}

func NewVault(store KeyStore, cfg VaultConfig) *Vault {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Vault{
		store: store,
		ttl:   cfg.TTL,
		reuse: cfg.Reuse,
		now:   now,
	}
}

// Issue generates a new token for path, persists it and returns it.
// Persistence failures are returned to the caller.
func (v *Vault) Issue(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("issue: empty path: %w", ErrInvalidInput)
	}

	token, err := NewToken()
	if err != nil {
		return "", fmt.Errorf("issue: %w", err)
	}

	key := AccessKey{Token: token, IssuedAt: v.now().UTC()}
	if err := v.store.Append(ctx, path, key); err != nil {
		return "", fmt.Errorf("issue: persist key: %w", err)
	}

	return token, nil
}

// IsValid reports whether token is a live key for path.
func (v *Vault) IsValid(ctx context.Context, path, token string) (bool, error) {
	if path == "" || token == "" {
		return false, nil
	}

	keys, err := v.store.Keys(ctx, path)
	if err != nil {
		return false, fmt.Errorf("is valid: %w", err)
	}

	found := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k.Token), []byte(token)) == 1 && v.live(k) {
			found = true
		}
	}

	return found, nil
}

// Acquire returns a key for path: the newest live key when reuse is
// enabled and one exists, otherwise a freshly issued one.
func (v *Vault) Acquire(ctx context.Context, path string) (string, error) {
	if v.reuse {
		keys, err := v.store.Keys(ctx, path)
		if err != nil {
			return "", fmt.Errorf("acquire: %w", err)
		}
		for i := len(keys) - 1; i >= 0; i-- {
			if keys[i].Token != "" && v.live(keys[i]) {
				return keys[i].Token, nil
			}
		}
	}

	return v.Issue(ctx, path)
}

// Keys lists every key recorded for path, live or expired.
func (v *Vault) Keys(ctx context.Context, path string) ([]AccessKey, error) {
	keys, err := v.store.Keys(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	return keys, nil
}

// Expired reports whether k is past the vault TTL.
func (v *Vault) Expired(k AccessKey) bool {
	return !v.live(k)
}

// live treats keys without an issue time (legacy records) as never
// expiring.
func (v *Vault) live(k AccessKey) bool {
	if v.ttl <= 0 || k.IssuedAt.IsZero() {
		return true
	}
	return v.now().Before(k.IssuedAt.Add(v.ttl))
}

// NewToken returns 20 random lowercase hex characters.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("new token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
