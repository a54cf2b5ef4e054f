package hostbackend

import "github.com/flowstate/flowcloud"

// NewHostStore returns a FileStore for path, or an empty MemoryStore when
// path is empty.
func NewHostStore(path string) flowcloud.HostStore {
	if path == "" {
		return NewMemoryStore(flowcloud.AllowedConfig{})
	}
	return NewFileStore(path)
}
