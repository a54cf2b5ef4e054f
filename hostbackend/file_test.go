package hostbackend_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/hostbackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestFileStore_Load(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		want    flowcloud.AllowedConfig
		wantErr error
	}{
		{
			name:    "json",
			file:    "allowed.json",
			content: `{"allowedHosts": ["https://a.example", "https://b.example"], "devMode": false}`,
			want:    flowcloud.AllowedConfig{AllowedHosts: []string{"https://a.example", "https://b.example"}},
		},
		{
			name:    "json dev mode",
			file:    "allowed.json",
			content: `{"allowedHosts": [], "devMode": true}`,
			want:    flowcloud.AllowedConfig{AllowedHosts: []string{}, DevMode: true},
		},
		{
			name:    "yaml",
			file:    "allowed.yaml",
			content: "allowedHosts:\n  - https://a.example\ndevMode: true\n",
			want:    flowcloud.AllowedConfig{AllowedHosts: []string{"https://a.example"}, DevMode: true},
		},
		{
			name:    "yml",
			file:    "hosts.yml",
			content: "allowedHosts: [https://a.example]\n",
			want:    flowcloud.AllowedConfig{AllowedHosts: []string{"https://a.example"}},
		},
		{
			name:    "empty file",
			file:    "allowed.json",
			content: "",
			want:    flowcloud.AllowedConfig{},
		},
		{
			name:    "corrupt json",
			file:    "allowed.json",
			content: `{"allowedHosts": [`,
			wantErr: hostbackend.ErrCorruptFile,
		},
		{
			name:    "corrupt yaml",
			file:    "allowed.yaml",
			content: "allowedHosts: [unclosed\n",
			wantErr: hostbackend.ErrCorruptFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := hostbackend.NewFileStore(writeTestFile(t, tt.file, tt.content))
			got, err := store.Load(context.Background())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	t.Parallel()

	store := hostbackend.NewFileStore(filepath.Join(t.TempDir(), "allowed.json"))
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.AllowedHosts)
	assert.False(t, got.DevMode)
}

func TestFileStore_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := writeTestFile(t, "allowed.json", `{"allowedHosts": ["https://a.example"]}`)
	store := hostbackend.NewFileStore(path)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsAllowed("https://a.example"))

	require.NoError(t, os.WriteFile(path, []byte(`{"allowedHosts": ["https://b.example", "https://c.example"]}`), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, got.IsAllowed("https://a.example"))
	assert.True(t, got.IsAllowed("https://b.example"))
}

func TestFileStore_ReloadsReplacedFileWithSameStat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "allowed.json")
	server := hostbackend.NewFileStore(path)
	admin := hostbackend.NewFileStore(path)

	require.NoError(t, admin.Save(ctx, flowcloud.AllowedConfig{AllowedHosts: []string{"https://a.example"}}))
	got, err := server.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.IsAllowed("https://a.example"))

	before, err := os.Stat(path)
	require.NoError(t, err)

	// Same-length origin, mtime pinned: only the file identity differs.
	require.NoError(t, admin.Save(ctx, flowcloud.AllowedConfig{AllowedHosts: []string{"https://b.example"}}))
	require.NoError(t, os.Chtimes(path, before.ModTime(), before.ModTime()))

	after, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, before.Size(), after.Size())

	got, err = server.Load(ctx)
	require.NoError(t, err)
	assert.False(t, got.IsAllowed("https://a.example"))
	assert.True(t, got.IsAllowed("https://b.example"))
}

func TestFileStore_LoadReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := hostbackend.NewFileStore(writeTestFile(t, "allowed.json", `{"allowedHosts": ["https://a.example"]}`))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	got.AllowedHosts[0] = "https://evil.example"

	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example"}, again.AllowedHosts)
}

func TestFileStore_SaveRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"allowed.json", "allowed.yaml"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			path := filepath.Join(t.TempDir(), name)
			store := hostbackend.NewFileStore(path)

			want := flowcloud.AllowedConfig{AllowedHosts: []string{"https://a.example"}, DevMode: true}
			require.NoError(t, store.Save(ctx, want))

			got, err := hostbackend.NewFileStore(path).Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temp files must not be left behind")
		})
	}
}

func TestFileStore_SaveNilHostsWritesEmptyList(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "allowed.json")
	store := hostbackend.NewFileStore(path)
	require.NoError(t, store.Save(context.Background(), flowcloud.AllowedConfig{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"allowedHosts": [], "devMode": false}`, string(data))
}
