// Package keybackend provides KeyStore implementations for access keys.
package keybackend

import (
	"context"
	"slices"
	"sync"

	"github.com/flowstate/flowcloud"
)

// MapStore keeps access keys in memory.
// Keys are lost on restart; suitable for tests and single-process demos.
type MapStore struct {
	mu   sync.RWMutex
	keys map[string][]flowcloud.AccessKey
}

// NewMapStore creates an empty in-memory key store.
func NewMapStore() *MapStore {
	return &MapStore{keys: make(map[string][]flowcloud.AccessKey)}
}

// NewMapStoreFrom creates an in-memory key store seeded with keys.
// The map is copied.
func NewMapStoreFrom(keys map[string][]flowcloud.AccessKey) *MapStore {
	s := NewMapStore()
	for path, list := range keys {
		s.keys[path] = slices.Clone(list)
	}
	return s
}

func (s *MapStore) Keys(ctx context.Context, path string) ([]flowcloud.AccessKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.keys[path]), nil
}

func (s *MapStore) Append(ctx context.Context, path string, key flowcloud.AccessKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[path] = append(s.keys[path], key)
	return nil
}
