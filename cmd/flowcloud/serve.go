package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowstate/flowcloud/config"
	"github.com/flowstate/flowcloud/hostbackend"
	flowhttp "github.com/flowstate/flowcloud/http"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long: `Start the FlowCloud HTTP gateway.

The allowed hosts file is re-read while the server runs, so 'flowcloud hosts'
changes take effect without a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP server port")
	serveCmd.Flags().String("static-path", "", "directory of front-end assets to serve on allow-listed paths")
	serveCmd.Flags().Bool("dev-mode", false, "skip origin checks for all callers")
	serveCmd.Flags().String("verify-path", "", "path of the partner verify endpoint (default: /flowcloud-auth)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	handler, cleanup, err := newHandler(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}

		slog.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
		cancel()
	}()

	if cfg.Auth.Secret == "" {
		slog.Warn("no shared secret configured, proxy and metadata routes will answer 404")
	}
	if cfg.Auth.DevMode {
		slog.Warn("dev mode is on, origin checks are skipped")
	}

	slog.Info("starting server", "addr", addr, "storage", cfg.Storage.Path, "keys", cfg.Keys.Backend, "hosts", cfg.Hosts.File)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// newHandler builds the gateway handler from cfg. The returned cleanup
// releases storage and key store resources.
func newHandler(ctx context.Context, cfg *config.Config) (*flowhttp.Handler, func(), error) {
	gateway, _, _, cleanup, err := openGateway(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var staticFS fs.FS
	if cfg.Static.Path != "" {
		staticRoot, err := os.OpenRoot(cfg.Static.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open static root: %w", err)
		}
		staticFS = staticRoot.FS()

		closeGateway := cleanup
		cleanup = func() {
			closeGateway()
			_ = staticRoot.Close()
		}
	}

	handler := flowhttp.NewHandler(&flowhttp.HandlerConfig{
		Gate: flowhttp.GateConfig{
			AllowedPrefixes: cfg.Gate.AllowedPrefixes,
			AllowedSuffixes: cfg.Gate.AllowedSuffixes,
			MarkerHeader:    cfg.Auth.MarkerHeader,
			MarkerValue:     cfg.Auth.MarkerValue,
			DevMode:         cfg.Auth.DevMode,
		},
		CORS: flowhttp.CORSConfig{
			AllowedHeaders: cfg.CORS.AllowedHeaders,
			MaxAge:         cfg.CORS.MaxAge,
		},
		Hosts:    hostbackend.NewHostStore(cfg.Hosts.File),
		Verifier: newVerifier(cfg),
		StaticFS: staticFS,
	}, gateway)

	return handler, cleanup, nil
}
