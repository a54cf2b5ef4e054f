package database

import (
	"context"
	"fmt"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/database/postgres"
	"github.com/flowstate/flowcloud/database/sqlite"
)

// Config holds the configuration for connecting to a key store database.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" yaml:"type"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn" yaml:"dsn"`
	// Tables holds the table names
	Tables flowcloud.Tables `mapstructure:"tables" yaml:"tables"`
}

// Database is a connected key store backend.
type Database interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Validate(ctx context.Context) error
	KeyStore() flowcloud.KeyStore
	Close() error
}

// Connect opens a connection to the configured backend. It does not touch
// the schema; call Migrate and Validate, or use Open.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	switch cfg.Type {
	case "sqlite":
		db, err := sqlite.Connect(ctx, cfg.DSN, cfg.Tables)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.DSN, cfg.Tables)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// Open connects, pings, migrates and validates the schema, and returns a
// ready KeyStore. The returned cleanup function closes the connection.
func Open(ctx context.Context, cfg Config) (flowcloud.KeyStore, func(), error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if err = db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", cfg.Type, err)
	}

	if err = db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate %s: %w", cfg.Type, err)
	}

	if err = db.Validate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("validate %s schema: %w", cfg.Type, err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return db.KeyStore(), cleanup, nil
}
