package e2e_test

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/partner"
)

const testSecret = "e2e-shared-secret"

var (
	binaryPath     string
	binaryBuildErr error
	binaryOnce     sync.Once
	sharedTempDir  string
)

// TestMain sets up and tears down shared test resources.
func TestMain(m *testing.M) {
	var err error
	sharedTempDir, err = os.MkdirTemp("", "flowcloud-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if testCleanup != nil {
		testCleanup()
	}
	_ = os.RemoveAll(sharedTempDir)

	os.Exit(code)
}

// ServerConfig holds configuration for starting the gateway.
type ServerConfig struct {
	Port         int
	KeysBackend  string // memory, file, sqlite, postgres
	DBDSN        string
	StoragePath  string
	Secret       string
	AllowedHosts []string
	DevMode      bool
}

// buildBinary compiles the flowcloud binary once per test run.
// Returns the path to the compiled binary.
func buildBinary(t *testing.T) string {
	t.Helper()

	binaryOnce.Do(func() {
		binaryPath = filepath.Join(sharedTempDir, "flowcloud")

		cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/flowcloud")
		cmd.Dir = getProjectRoot(t)
		output, err := cmd.CombinedOutput()
		if err != nil {
			binaryBuildErr = fmt.Errorf("build binary: %w\nOutput: %s", err, output)
			return
		}
	})

	if binaryBuildErr != nil {
		t.Fatalf("failed to build binary: %v", binaryBuildErr)
	}

	return binaryPath
}

// getProjectRoot returns the directory holding go.mod.
func getProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "get working directory")

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// createConfigFile writes the server config and the allowed hosts file.
// Returns the path to the config file.
func createConfigFile(t *testing.T, cfg ServerConfig) string {
	t.Helper()

	var sb strings.Builder
	fmt.Fprintf(&sb, `server:
  port: %d

storage:
  path: "%s"

auth:
  secret: "%s"

keys:
  backend: %s
`,
		cfg.Port,
		cfg.StoragePath,
		cfg.Secret,
		cfg.KeysBackend,
	)

	if cfg.DBDSN != "" {
		fmt.Fprintf(&sb, "\ndatabase:\n  dsn: \"%s\"\n", cfg.DBDSN)
	}

	sb.WriteString("\nlog:\n  level: error\n")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(configPath, []byte(sb.String()), 0o600)
	require.NoError(t, err, "write config file")

	hosts, err := json.Marshal(flowcloud.AllowedConfig{AllowedHosts: cfg.AllowedHosts, DevMode: cfg.DevMode})
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(cfg.StoragePath, "allowed.json"), hosts, 0o600)
	require.NoError(t, err, "write hosts file")

	return configPath
}

// startServer starts the flowcloud binary with the given configuration.
// Returns the base URL and the config path; the server stops when the
// test ends.
func startServer(t *testing.T, cfg ServerConfig) (string, string) {
	t.Helper()

	binary := buildBinary(t)
	configPath := createConfigFile(t, cfg)

	cmd := exec.Command(binary, "serve", "--config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Start()
	require.NoError(t, err, "start server")

	t.Cleanup(func() {
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
			_ = cmd.Wait()
		}
	})

	baseURL := fmt.Sprintf("http://localhost:%d", cfg.Port)
	waitForServer(t, baseURL, 10*time.Second)

	return baseURL, configPath
}

// runCLI runs a flowcloud sub-command against configPath and returns its
// combined output.
func runCLI(t *testing.T, configPath string, args ...string) string {
	t.Helper()

	args = append(args, "--config", configPath)
	output, err := exec.Command(buildBinary(t), args...).CombinedOutput()
	require.NoError(t, err, "flowcloud %s: %s", strings.Join(args, " "), output)
	return string(output)
}

// startPartner starts a partner server that answers challenges with secret.
// Returns its origin.
func startPartner(t *testing.T, secret string) string {
	t.Helper()

	r := chi.NewRouter()
	partner.Mount(r, secret, "")

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL
}

// waitForServer polls the server until it responds or times out.
func waitForServer(t *testing.T, baseURL string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 1 * time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/")
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("server failed to start within %v", timeout)
}

// getOpenPort finds an available TCP port.
func getOpenPort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err, "find open port")

	port := l.Addr().(*net.TCPAddr).Port

	err = l.Close()
	require.NoError(t, err, "close port")

	return port
}
