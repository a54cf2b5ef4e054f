// Package config provides configuration loading and validation for the
// gateway and its admin CLI.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (FLOWCLOUD_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// All config keys map to environment variables with FLOWCLOUD_ prefix:
//   - server.port → FLOWCLOUD_SERVER_PORT
//   - keys.backend → FLOWCLOUD_KEYS_BACKEND
//   - auth.secret → FLOWCLOUD_AUTH_SECRET, or SYSTEM_ACCESS_KEY
//
// # Store Files
//
// hosts.file and keys.file default to allowed.json and keys.json inside
// storage.path. StoreFileNames returns their base names so the gateway
// refuses to serve them.
//
// # Validation
//
// Configuration is validated using struct tags:
//   - Port must be 1-65535
//   - Env must be dev or prod
//   - keys.backend must be memory, file, sqlite, or postgres
//   - auth.verify_path must start with "/"
//   - Log level must be debug, info, warn, or error
package config
