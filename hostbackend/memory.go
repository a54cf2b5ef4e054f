// Package hostbackend provides HostStore implementations for the
// allowed-origins record.
package hostbackend

import (
	"context"
	"slices"
	"sync"

	"github.com/flowstate/flowcloud"
)

// MemoryStore holds the allowed-origins record in memory.
type MemoryStore struct {
	mu  sync.RWMutex
	cfg flowcloud.AllowedConfig
}

// NewMemoryStore creates a store seeded with cfg.
func NewMemoryStore(cfg flowcloud.AllowedConfig) *MemoryStore {
	return &MemoryStore{cfg: clone(cfg)}
}

func (s *MemoryStore) Load(ctx context.Context) (flowcloud.AllowedConfig, error) {
	if err := ctx.Err(); err != nil {
		return flowcloud.AllowedConfig{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return clone(s.cfg), nil
}

func (s *MemoryStore) Save(ctx context.Context, cfg flowcloud.AllowedConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = clone(cfg)
	return nil
}

func clone(cfg flowcloud.AllowedConfig) flowcloud.AllowedConfig {
	return flowcloud.AllowedConfig{
		AllowedHosts: slices.Clone(cfg.AllowedHosts),
		DevMode:      cfg.DevMode,
	}
}
