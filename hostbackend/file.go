package hostbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flowstate/flowcloud"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrCorruptFile is returned when the hosts file cannot be decoded.
var ErrCorruptFile = errors.New("hosts file is corrupt")

// FileStore reads the allowed-origins record from a JSON or YAML file,
// chosen by extension (.yaml and .yml are YAML, anything else JSON).
//
// Load re-reads the file only when it was replaced or its modification
// time or size changed, so edits made by the admin CLI or by hand take effect on the next request
// without a restart. A missing file loads as the zero config.
type FileStore struct {
	path string
	yaml bool

	mu     sync.Mutex
	cached flowcloud.AllowedConfig
	info   os.FileInfo
}

// NewFileStore creates a file-backed host store.
func NewFileStore(path string) *FileStore {
	ext := strings.ToLower(filepath.Ext(path))
	return &FileStore{
		path: path,
		yaml: ext == ".yaml" || ext == ".yml",
	}
}

// Path returns the hosts file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (flowcloud.AllowedConfig, error) {
	if err := ctx.Err(); err != nil {
		return flowcloud.AllowedConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.info = nil
			return flowcloud.AllowedConfig{}, nil
		}
		return flowcloud.AllowedConfig{}, fmt.Errorf("load hosts: %w", err)
	}

	if unchanged(s.info, info) {
		return clone(s.cached), nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return flowcloud.AllowedConfig{}, fmt.Errorf("load hosts: %w", err)
	}

	cfg, err := s.decode(data)
	if err != nil {
		return flowcloud.AllowedConfig{}, fmt.Errorf("load hosts %s: %w: %w", s.path, ErrCorruptFile, err)
	}

	s.cached = cfg
	s.info = info

	slog.Debug("hosts file reloaded", "path", s.path, "hosts", len(cfg.AllowedHosts), "dev_mode", cfg.DevMode)

	return clone(cfg), nil
}

// unchanged reports whether cur is the same file, with the same mtime and
// size, as the one last loaded. Save renames a new file into place, so a
// rewrite is caught even within the mtime granularity.
func unchanged(prev, cur os.FileInfo) bool {
	return prev != nil &&
		os.SameFile(prev, cur) &&
		prev.ModTime().Equal(cur.ModTime()) &&
		prev.Size() == cur.Size()
}

// Save writes cfg atomically. The directory must exist.
func (s *FileStore) Save(ctx context.Context, cfg flowcloud.AllowedConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.AllowedHosts == nil {
		cfg.AllowedHosts = []string{}
	}

	data, err := s.encode(cfg)
	if err != nil {
		return fmt.Errorf("save hosts: %w", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("save hosts: %w", err)
	}

	s.info = nil
	return nil
}

func (s *FileStore) decode(data []byte) (flowcloud.AllowedConfig, error) {
	var cfg flowcloud.AllowedConfig
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	if s.yaml {
		err := yaml.Unmarshal(data, &cfg)
		return cfg, err
	}

	err := json.Unmarshal(data, &cfg)
	return cfg, err
}

func (s *FileStore) encode(cfg flowcloud.AllowedConfig) ([]byte, error) {
	if s.yaml {
		return yaml.Marshal(cfg)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), ".t"+uuid.New().String())

	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // hosts file is not secret
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace hosts file: %w", err)
	}

	return nil
}
