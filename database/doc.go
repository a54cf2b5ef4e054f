// Package database provides a unified interface for connecting to access key
// store backends.
//
// The package supports multiple database backends (PostgreSQL and SQLite) and handles
// connection management, migrations, and schema validation.
//
// # Supported Backends
//
//   - PostgreSQL: Production-ready backend using pgx connection pool
//   - SQLite: Lightweight backend suitable for development and single-node deployments
//
// # Usage
//
//	cfg := database.Config{
//	    Type:   "sqlite",
//	    DSN:    "flowcloud.db",
//	    Tables: flowcloud.Tables{AccessKeys: "access_keys"},
//	}
//
//	store, cleanup, err := database.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
//
//	vault := flowcloud.NewVault(store, flowcloud.VaultConfig{})
//
// Each Append is a single INSERT, so concurrent issuers never lose keys.
//
// # Subpackages
//
//   - database/postgres: PostgreSQL implementation using pgx
//   - database/sqlite: SQLite implementation using modernc.org/sqlite
package database
