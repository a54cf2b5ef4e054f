// Package filesystem provides the file system storage backend for the
// gateway. All access goes through an os.Root, so symlinks and traversal
// cannot reach outside the storage directory.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/flowstate/flowcloud"
	"github.com/google/uuid"
)

const tmpPrefix = ".t"

// Store provides file system storage operations.
type Store struct {
	root *os.Root
}

// NewFileStorage creates a new Store with the given root directory.
// The root provides sandboxed file operations preventing path traversal.
func NewFileStorage(root *os.Root) *Store {
	return &Store{root: root}
}

// Get opens a regular file for reading.
// Missing files and directories are reported as flowcloud.ErrNotFound,
// paths that resolve outside the root as flowcloud.ErrPathUnsafe.
func (s *Store) Get(ctx context.Context, path string) (flowcloud.Object, error) {
	if err := ctx.Err(); err != nil {
		return flowcloud.Object{}, err
	}

	f, err := s.root.Open(path)
	if err != nil {
		return flowcloud.Object{}, mapOpenError(err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return flowcloud.Object{}, fmt.Errorf("get: stat: %w", err)
	}

	if !info.Mode().IsRegular() {
		_ = f.Close()
		return flowcloud.Object{}, flowcloud.ErrNotFound
	}

	return flowcloud.Object{
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: detectContentType(path),
		Content:     f,
	}, nil
}

// Stat returns information about a regular file without opening it for
// the caller.
func (s *Store) Stat(ctx context.Context, path string) (flowcloud.ObjectEntry, error) {
	if err := ctx.Err(); err != nil {
		return flowcloud.ObjectEntry{}, err
	}

	info, err := s.root.Stat(path)
	if err != nil {
		return flowcloud.ObjectEntry{}, mapOpenError(err)
	}

	if !info.Mode().IsRegular() {
		return flowcloud.ObjectEntry{}, flowcloud.ErrNotFound
	}

	return flowcloud.ObjectEntry{
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: detectContentType(path),
	}, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Write atomically writes content to the given path using a temp file and rename.
// It creates intermediate directories as needed and returns a SaveResult containing
// the number of bytes written and SHA256-based etag. The operation respects context cancellation.
func (s *Store) Write(ctx context.Context, path string, content io.Reader) (flowcloud.SaveResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return flowcloud.SaveResult{}, ctxErr
	}

	tmpFile := tmpFileName()
	t, createErr := s.root.Create(tmpFile)
	if createErr != nil {
		return flowcloud.SaveResult{}, fmt.Errorf("could not open temp file: %w", createErr)
	}

	success := false
	defer func() {
		if closeErr := t.Close(); closeErr != nil {
			slog.Warn("failed to close tmp file", "err", closeErr)
		}
		if !success {
			if rmErr := s.root.Remove(tmpFile); rmErr != nil {
				slog.Warn("failed to remove tmp file", "err", rmErr)
			}
		}
	}()

	h := sha256.New()
	w := io.MultiWriter(h, t)

	fileSizeBytes, err := io.Copy(w, &ctxReader{ctx: ctx, r: content})
	if err != nil {
		return flowcloud.SaveResult{}, fmt.Errorf("could not copy file contents: %w", err)
	}

	if err := t.Sync(); err != nil {
		return flowcloud.SaveResult{}, fmt.Errorf("could not sync written file: %w", err)
	}

	destDir := filepath.Dir(path)
	if destDir != "." {
		if err := s.root.MkdirAll(destDir, 0o755); err != nil {
			return flowcloud.SaveResult{}, fmt.Errorf("could not create intermediate directories: %w", mapOpenError(err))
		}
	}

	if renameErr := s.root.Rename(tmpFile, path); renameErr != nil {
		return flowcloud.SaveResult{}, fmt.Errorf("failed to rename file: %w", mapOpenError(renameErr))
	}

	success = true

	return flowcloud.SaveResult{BytesWritten: fileSizeBytes, Etag: hex.EncodeToString(h.Sum(nil))}, nil
}

// List recursively walks the root directory and returns every regular file
// that the gateway would serve. Temp files and denied store files are
// skipped.
func (s *Store) List(ctx context.Context) ([]flowcloud.ObjectEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []flowcloud.ObjectEntry

	err := fs.WalkDir(s.root.FS(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !d.Type().IsRegular() || isTmpFile(d.Name()) || flowcloud.IsDeniedName(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("walk dir: %w", err)
		}

		entries = append(entries, flowcloud.ObjectEntry{
			Path:        path,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			ContentType: detectContentType(path),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return entries, nil
}

// mapOpenError translates os.Root failures into gateway errors.
// os.Root does not export its escape error, so it is matched by message.
func mapOpenError(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return flowcloud.ErrNotFound
	case strings.Contains(err.Error(), "path escapes from parent"):
		return fmt.Errorf("%w: %w", flowcloud.ErrPathUnsafe, err)
	default:
		return fmt.Errorf("open: %w", err)
	}
}

func detectContentType(path string) string {
	contentType := mime.TypeByExtension(filepath.Ext(path))

	if contentType == "" {
		return "application/octet-stream"
	}

	return contentType
}

func tmpFileName() string {
	return tmpPrefix + uuid.New().String()
}

func isTmpFile(name string) bool {
	rest, ok := strings.CutPrefix(name, tmpPrefix)
	return ok && uuid.Validate(rest) == nil
}
