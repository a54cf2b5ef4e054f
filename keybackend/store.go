package keybackend

import (
	"fmt"

	"github.com/flowstate/flowcloud"
)

// KeysConfig selects and configures a key store.
type KeysConfig struct {
	Backend string `mapstructure:"backend"` // memory or file; sqlite and postgres live in the database package
	File    string `mapstructure:"file"`    // Path to the JSON keys file
}

// NewKeyStore creates a KeyStore for the memory and file backends.
// Other backends return ErrUnsupportedBackend so callers can fall through
// to the database package.
func NewKeyStore(cfg KeysConfig) (flowcloud.KeyStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMapStore(), nil
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("new key store: file backend needs a file path: %w", flowcloud.ErrInvalidInput)
		}
		return NewFileStore(cfg.File), nil
	default:
		return nil, fmt.Errorf("new key store %q: %w", cfg.Backend, ErrUnsupportedBackend)
	}
}
