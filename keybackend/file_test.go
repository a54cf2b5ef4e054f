package keybackend_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/keybackend"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeysFromFile_ObjectFormat(t *testing.T) {
	t.Parallel()

	content := `{
		"docs/a.pdf": [
			{"token": "0123456789abcdef0123", "issued_at": "2024-05-01T10:00:00Z"},
			{"token": "fedcba9876543210fedc", "issued_at": "2024-05-02T10:00:00Z"}
		]
	}`
	path := writeTestFile(t, content)

	keys, err := keybackend.LoadKeysFromFile(path)
	require.NoError(t, err)

	require.Len(t, keys["docs/a.pdf"], 2)
	assert.Equal(t, "0123456789abcdef0123", keys["docs/a.pdf"][0].Token)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), keys["docs/a.pdf"][0].IssuedAt.UTC())
}

func TestLoadKeysFromFile_LegacyFormat(t *testing.T) {
	t.Parallel()

	content := `{"report.pdf": ["0123456789abcdef0123", "fedcba9876543210fedc"]}`
	path := writeTestFile(t, content)

	keys, err := keybackend.LoadKeysFromFile(path)
	require.NoError(t, err)

	require.Len(t, keys["report.pdf"], 2)
	assert.Equal(t, "fedcba9876543210fedc", keys["report.pdf"][1].Token)
	assert.True(t, keys["report.pdf"][1].IssuedAt.IsZero())
}

func TestLoadKeysFromFile_MixedFormat(t *testing.T) {
	t.Parallel()

	content := `{"report.pdf": ["0123456789abcdef0123", {"token": "fedcba9876543210fedc", "issued_at": "2024-05-02T10:00:00Z"}]}`
	path := writeTestFile(t, content)

	keys, err := keybackend.LoadKeysFromFile(path)
	require.NoError(t, err)
	require.Len(t, keys["report.pdf"], 2)
	assert.False(t, keys["report.pdf"][1].IssuedAt.IsZero())
}

func TestLoadKeysFromFile_MissingOrEmpty(t *testing.T) {
	t.Parallel()

	keys, err := keybackend.LoadKeysFromFile(filepath.Join(t.TempDir(), "keys.json"))
	require.NoError(t, err)
	assert.Empty(t, keys)

	for _, content := range []string{"", "  \n", "null", "{}"} {
		keys, err := keybackend.LoadKeysFromFile(writeTestFile(t, content))
		require.NoError(t, err, "content %q", content)
		assert.NotNil(t, keys)
		assert.Empty(t, keys)
	}
}

func TestLoadKeysFromFile_Corrupt(t *testing.T) {
	t.Parallel()

	for _, content := range []string{`{invalid`, `[]`, `{"a": 42}`} {
		_, err := keybackend.LoadKeysFromFile(writeTestFile(t, content))
		assert.ErrorIs(t, err, keybackend.ErrCorruptFile, "content %q", content)
	}
}

func TestFileStore_AppendPersists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys.json")
	issued := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	store := keybackend.NewFileStore(path)
	require.NoError(t, store.Append(ctx, "docs/a.pdf", flowcloud.AccessKey{Token: "0123456789abcdef0123", IssuedAt: issued}))
	require.NoError(t, store.Append(ctx, "docs/a.pdf", flowcloud.AccessKey{Token: "fedcba9876543210fedc", IssuedAt: issued}))

	// A fresh store over the same file sees both keys.
	reopened := keybackend.NewFileStore(path)
	got, err := reopened.Keys(ctx, "docs/a.pdf")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0123456789abcdef0123", got[0].Token)
	assert.Equal(t, "fedcba9876543210fedc", got[1].Token)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2024-05-01T10:00:00Z", raw["docs/a.pdf"][0]["issued_at"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_AppendUpgradesLegacyFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := writeTestFile(t, `{"report.pdf": ["0123456789abcdef0123"]}`)

	store := keybackend.NewFileStore(path)
	require.NoError(t, store.Append(ctx, "report.pdf", flowcloud.AccessKey{Token: "fedcba9876543210fedc", IssuedAt: time.Now()}))

	got, err := store.Keys(ctx, "report.pdf")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0123456789abcdef0123", got[0].Token)
}

func TestFileStore_AppendRefusesCorruptFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := writeTestFile(t, `{invalid`)

	store := keybackend.NewFileStore(path)
	err := store.Append(ctx, "a.txt", flowcloud.AccessKey{Token: "x"})
	require.ErrorIs(t, err, keybackend.ErrCorruptFile)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{invalid`, string(data), "corrupt file must not be overwritten")
}

func TestFileStore_AppendMissingDirectory(t *testing.T) {
	t.Parallel()

	store := keybackend.NewFileStore(filepath.Join(t.TempDir(), "missing", "keys.json"))
	err := store.Append(context.Background(), "a.txt", flowcloud.AccessKey{Token: "x"})
	assert.Error(t, err)
}

func TestFileStore_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store := keybackend.NewFileStore(filepath.Join(dir, "keys.json"))

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			token, err := flowcloud.NewToken()
			if assert.NoError(t, err) {
				assert.NoError(t, store.Append(ctx, "shared.txt", flowcloud.AccessKey{Token: token}))
			}
		})
	}
	wg.Wait()

	got, err := store.Keys(ctx, "shared.txt")
	require.NoError(t, err)
	assert.Len(t, got, 20)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"keys.json", "keys.json.lock"}, names, "temp files must not be left behind")
}

func TestFileStore_AppendFromTwoStores(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys.json")
	server := keybackend.NewFileStore(path)
	cli := keybackend.NewFileStore(path)

	const perStore = 50
	var wg sync.WaitGroup
	for i := range perStore {
		for name, store := range map[string]*keybackend.FileStore{"server": server, "cli": cli} {
			wg.Go(func() {
				p := fmt.Sprintf("%s/%d.txt", name, i)
				assert.NoError(t, store.Append(ctx, p, flowcloud.AccessKey{Token: "0123456789abcdef0123"}))
			})
		}
	}
	wg.Wait()

	all, err := keybackend.LoadKeysFromFile(path)
	require.NoError(t, err)
	assert.Len(t, all, 2*perStore, "appends from either store must not be lost")
}

func TestFileStore_AppendCancelledWhileLocked(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys.json")
	holder := flock.New(keybackend.LockPath(path))
	require.NoError(t, holder.Lock())
	t.Cleanup(func() { _ = holder.Unlock() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	store := keybackend.NewFileStore(path)
	err := store.Append(ctx, "a.txt", flowcloud.AccessKey{Token: "0123456789abcdef0123"})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, os.ErrNotExist, "nothing is written without the lock")
}

func TestNewKeyStore(t *testing.T) {
	t.Parallel()

	store, err := keybackend.NewKeyStore(keybackend.KeysConfig{})
	require.NoError(t, err)
	assert.IsType(t, &keybackend.MapStore{}, store)

	store, err = keybackend.NewKeyStore(keybackend.KeysConfig{Backend: "file", File: "/tmp/keys.json"})
	require.NoError(t, err)
	assert.IsType(t, &keybackend.FileStore{}, store)

	_, err = keybackend.NewKeyStore(keybackend.KeysConfig{Backend: "file"})
	assert.ErrorIs(t, err, flowcloud.ErrInvalidInput)

	_, err = keybackend.NewKeyStore(keybackend.KeysConfig{Backend: "postgres"})
	assert.ErrorIs(t, err, keybackend.ErrUnsupportedBackend)
}

// writeTestFile is a test helper that creates a temporary file with the given content
func writeTestFile(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")

	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}
