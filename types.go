package flowcloud

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AllowedConfig is the set of origins allowed to call the gateway plus the
// dev mode bypass flag. Field names match the allowed.json format.
type AllowedConfig struct {
	AllowedHosts []string `json:"allowedHosts" yaml:"allowedHosts"`
	DevMode      bool     `json:"devMode" yaml:"devMode"`
}

// IsAllowed reports whether origin is a member of AllowedHosts.
// Comparison ignores case and a trailing slash.
func (c AllowedConfig) IsAllowed(origin string) bool {
	origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
	if origin == "" {
		return false
	}
	for _, h := range c.AllowedHosts {
		if strings.EqualFold(strings.TrimSuffix(strings.TrimSpace(h), "/"), origin) {
			return true
		}
	}
	return false
}

// AccessKey is a per-file capability token.
type AccessKey struct {
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// UnmarshalJSON accepts both the object form and a bare token string, which
// is how keys.json stored keys before issue times were tracked.
func (k *AccessKey) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		*k = AccessKey{Token: token}
		return nil
	}

	type plain AccessKey
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal access key: %w", err)
	}
	*k = AccessKey(p)
	return nil
}

// Object is an opened file ready to be streamed.
// The caller is responsible for closing Content.
type Object struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ContentType string
	Content     io.ReadSeekCloser
}

type ObjectEntry struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ContentType string
}

type SaveResult struct {
	BytesWritten int64
	Etag         string
}

// FileMetadata is returned by the privileged metadata endpoint.
type FileMetadata struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	AccessKey string    `json:"accessKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tables holds configurable table names for access key storage.
// This allows multi-tenant deployments to use different table names.
type Tables struct {
	AccessKeys string `mapstructure:"access_keys" yaml:"access_keys"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.AccessKeys == "" {
		return errors.New("validate tables: access keys table name cannot be empty")
	}

	if !IsValidTableName(t.AccessKeys) {
		return fmt.Errorf("validate tables: invalid access keys table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.AccessKeys)
	}

	return nil
}
