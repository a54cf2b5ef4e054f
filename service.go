package flowcloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
)

// HostStore loads and saves the allowed-origins record.
// Implementations must be safe for concurrent use. Load is called on every
// gated request, so implementations should make unchanged reloads cheap.
type HostStore interface {
	// Load returns the current configuration. A store that has never been
	// written returns the zero AllowedConfig and no error.
	Load(ctx context.Context) (AllowedConfig, error)

	// Save replaces the stored configuration.
	Save(ctx context.Context, cfg AllowedConfig) error
}

// FileStorage defines the interface for reading files under a fixed root.
//
// All methods accept a context for cancellation.
// Implementations must keep every resolved path inside the root and report
// an escaping path as ErrPathUnsafe.
type FileStorage interface {
	// Get opens a regular file for reading.
	//
	// Returns:
	//   - Object: opened file with size and modification time; the caller
	//     closes Object.Content
	//   - error: ErrNotFound if the file doesn't exist or is not a regular
	//     file, ErrPathUnsafe if the path escapes the root
	Get(ctx context.Context, path string) (Object, error)

	// Stat returns file information without opening the content.
	Stat(ctx context.Context, path string) (ObjectEntry, error)

	// Write atomically stores content at path, creating parent directories.
	Write(ctx context.Context, path string, content io.Reader) (SaveResult, error)

	// List walks the root and returns every regular file.
	List(ctx context.Context) ([]ObjectEntry, error)
}

// metadataNamespace scopes the name-based UUIDs handed out as file ids.
var metadataNamespace = uuid.MustParse("6f1c2d3e-8a4b-5c6d-9e0f-a1b2c3d4e5f6")

// GatewayConfig holds configuration options for Gateway.
type GatewayConfig struct {
	// DeniedNames extends DefaultDeniedNames with store file names that
	// must never be served.
	DeniedNames []string
}

// Gateway serves files from storage once a request has been authorized,
// and turns privileged metadata requests into capability links.
type Gateway struct {
	vault       *Vault
	storage     FileStorage
	deniedNames []string
}

func NewGateway(vault *Vault, storage FileStorage, cfg GatewayConfig) (*Gateway, error) {
	if vault == nil {
		return nil, errors.New("new gateway: vault is required")
	}
	if storage == nil {
		return nil, errors.New("new gateway: storage is required")
	}

	denied := make([]string, 0, len(cfg.DeniedNames))
	for _, n := range cfg.DeniedNames {
		if n = path.Base(n); n != "" && n != "." && n != "/" {
			denied = append(denied, n)
		}
	}

	return &Gateway{
		vault:       vault,
		storage:     storage,
		deniedNames: denied,
	}, nil
}

// Normalize applies NormalizePath with the gateway's denied names.
func (g *Gateway) Normalize(raw string) (string, error) {
	return NormalizePath(raw, g.deniedNames...)
}

// Open serves a file to a caller the access gate has already authorized.
func (g *Gateway) Open(ctx context.Context, rawPath string) (Object, error) {
	p, err := g.Normalize(rawPath)
	if err != nil {
		return Object{}, fmt.Errorf("open: %w", err)
	}

	obj, err := g.storage.Get(ctx, p)
	if err != nil {
		return Object{}, fmt.Errorf("open: %w", err)
	}

	return obj, nil
}

// OpenWithKey serves a file to the holder of a capability token.
//
// Returns ErrKeyRequired for an empty key and ErrNotFound for an unknown
// key, so an invalid key cannot be told apart from a missing file.
func (g *Gateway) OpenWithKey(ctx context.Context, rawPath, key string) (Object, error) {
	if key == "" {
		return Object{}, fmt.Errorf("open with key: %w", ErrKeyRequired)
	}

	p, err := g.Normalize(rawPath)
	if err != nil {
		return Object{}, fmt.Errorf("open with key: %w", err)
	}

	ok, err := g.vault.IsValid(ctx, p, key)
	if err != nil {
		return Object{}, fmt.Errorf("open with key: %w", err)
	}
	if !ok {
		return Object{}, fmt.Errorf("open with key: unknown key: %w", ErrNotFound)
	}

	obj, err := g.storage.Get(ctx, p)
	if err != nil {
		return Object{}, fmt.Errorf("open with key: %w", err)
	}

	return obj, nil
}

// Describe returns metadata for a file and the access key that unlocks its
// public link, issuing a key when needed. The file must exist before a key
// is issued.
func (g *Gateway) Describe(ctx context.Context, rawPath string) (FileMetadata, error) {
	p, err := g.Normalize(rawPath)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("describe: %w", err)
	}

	entry, err := g.storage.Stat(ctx, p)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("describe: %w", err)
	}

	key, err := g.vault.Acquire(ctx, p)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("describe: %w", err)
	}

	return FileMetadata{
		ID:        uuid.NewSHA1(metadataNamespace, []byte(p)),
		Name:      path.Base(p),
		Type:      "file",
		Path:      "/" + p,
		Size:      entry.Size,
		AccessKey: key,
		CreatedAt: entry.ModTime.UTC(),
	}, nil
}
