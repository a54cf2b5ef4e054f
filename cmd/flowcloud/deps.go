package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/config"
	"github.com/flowstate/flowcloud/database"
	"github.com/flowstate/flowcloud/filesystem"
	"github.com/flowstate/flowcloud/keybackend"
)

// openStorage opens the storage root, creating the directory if needed.
func openStorage(cfg *config.Config) (*filesystem.Store, func(), error) {
	if err := os.MkdirAll(cfg.Storage.Path, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create storage directory: %w", err)
	}

	root, err := os.OpenRoot(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage root: %w", err)
	}

	return filesystem.NewFileStorage(root), func() { _ = root.Close() }, nil
}

// openKeyStore returns the configured access key store.
func openKeyStore(ctx context.Context, cfg *config.Config) (flowcloud.KeyStore, func(), error) {
	if cfg.Keys.UsesDatabase() {
		store, cleanup, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("open key database: %w", err)
		}
		slog.Debug("connected to key database", "type", cfg.Database.Type)
		return store, cleanup, nil
	}

	store, err := keybackend.NewKeyStore(cfg.Keys.Store())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Keys.Backend == "memory" {
		slog.Warn("access keys are kept in memory and lost on restart")
	}
	return store, func() {}, nil
}

// openGateway wires storage, key store and vault into a Gateway.
func openGateway(ctx context.Context, cfg *config.Config) (*flowcloud.Gateway, *flowcloud.Vault, *filesystem.Store, func(), error) {
	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	keys, closeKeys, err := openKeyStore(ctx, cfg)
	if err != nil {
		closeStorage()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		closeKeys()
		closeStorage()
	}

	vault := flowcloud.NewVault(keys, flowcloud.VaultConfig{
		TTL:   cfg.Keys.TTL,
		Reuse: cfg.Keys.Reuse,
	})

	gateway, err := flowcloud.NewGateway(vault, storage, flowcloud.GatewayConfig{
		DeniedNames: cfg.StoreFileNames(),
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, fmt.Errorf("create gateway: %w", err)
	}

	return gateway, vault, storage, cleanup, nil
}

func newVerifier(cfg *config.Config) *flowcloud.OriginVerifier {
	return flowcloud.NewOriginVerifier(flowcloud.OriginVerifierConfig{
		Secret:           cfg.Auth.Secret,
		VerifyPath:       cfg.Auth.VerifyPath,
		MaxSkew:          cfg.Auth.MaxSkew,
		ChallengeTimeout: cfg.Auth.ChallengeTimeout,
	})
}
