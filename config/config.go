package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/database"
	flowhttp "github.com/flowstate/flowcloud/http"
	"github.com/flowstate/flowcloud/keybackend"
)

const (
	// DefaultHostsFile and DefaultKeysFile are placed inside the storage
	// directory when no explicit path is configured.
	DefaultHostsFile = "allowed.json"
	DefaultKeysFile  = "keys.json"

	redacted = "[redacted]"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for flowcloud.
type Config struct {
	Env      string          `mapstructure:"env" yaml:"env" validate:"required,oneof=dev prod"`
	Server   ServerConfig    `mapstructure:"server" yaml:"server"`
	Storage  StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Static   StaticConfig    `mapstructure:"static" yaml:"static"`
	Auth     AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Hosts    HostsConfig     `mapstructure:"hosts" yaml:"hosts"`
	Keys     KeysConfig      `mapstructure:"keys" yaml:"keys"`
	Database database.Config `mapstructure:"database" yaml:"database"`
	Gate     GateConfig      `mapstructure:"gate" yaml:"gate"`
	CORS     CORSConfig      `mapstructure:"cors" yaml:"cors"`
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
	Partner  PartnerConfig   `mapstructure:"partner" yaml:"partner"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path" validate:"required"`
}

// StaticConfig points at an optional directory of front-end assets.
type StaticConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AuthConfig holds the shared secret and the access gate's protocol
// settings.
type AuthConfig struct {
	Secret           string        `mapstructure:"secret" yaml:"secret"`
	VerifyPath       string        `mapstructure:"verify_path" yaml:"verify_path" validate:"required,startswith=/"`
	MarkerHeader     string        `mapstructure:"marker_header" yaml:"marker_header" validate:"required"`
	MarkerValue      string        `mapstructure:"marker_value" yaml:"marker_value" validate:"required"`
	MaxSkew          time.Duration `mapstructure:"max_skew" yaml:"max_skew" validate:"gt=0"`
	ChallengeTimeout time.Duration `mapstructure:"challenge_timeout" yaml:"challenge_timeout" validate:"gt=0"`
	DevMode          bool          `mapstructure:"dev_mode" yaml:"dev_mode"`
}

// HostsConfig locates the allowed-origins record.
type HostsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// KeysConfig selects the access key store and its issuing policy.
type KeysConfig struct {
	Backend string        `mapstructure:"backend" yaml:"backend" validate:"required,oneof=memory file sqlite postgres"`
	File    string        `mapstructure:"file" yaml:"file"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"min=0"`
	Reuse   bool          `mapstructure:"reuse" yaml:"reuse"`
}

// Store returns the keybackend view of k.
func (k KeysConfig) Store() keybackend.KeysConfig {
	return keybackend.KeysConfig{Backend: k.Backend, File: k.File}
}

// UsesDatabase reports whether keys live in the configured database.
func (k KeysConfig) UsesDatabase() bool {
	return k.Backend == "sqlite" || k.Backend == "postgres"
}

// GateConfig holds the path allow-list.
type GateConfig struct {
	AllowedPrefixes []string `mapstructure:"allowed_prefixes" yaml:"allowed_prefixes"`
	AllowedSuffixes []string `mapstructure:"allowed_suffixes" yaml:"allowed_suffixes"`
}

// CORSConfig holds the CORS settings that are not derived from the
// allowed-hosts record.
type CORSConfig struct {
	AllowedHeaders []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age" yaml:"max_age" validate:"min=0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
}

// PartnerConfig is used by the partner-side commands.
type PartnerConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Origin   string `mapstructure:"origin" yaml:"origin"`
}

// Redacted returns a copy of c that is safe to print.
func (c Config) Redacted() Config {
	if c.Auth.Secret != "" {
		c.Auth.Secret = redacted
	}
	if c.Database.DSN != "" && c.Database.Type == "postgres" {
		c.Database.DSN = redacted
	}
	return c
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"port":         "server.port",
	"storage-path": "storage.path",
	"static-path":  "static.path",
	"dev-mode":     "auth.dev_mode",
	"verify-path":  "auth.verify_path",
	"hosts-file":   "hosts.file",
	"keys-backend": "keys.backend",
	"keys-file":    "keys.file",
	"keys-ttl":     "keys.ttl",
	"db-type":      "database.type",
	"db-dsn":       "database.dsn",
	"log-level":    "log.level",
	"endpoint":     "partner.endpoint",
	"origin":       "partner.origin",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance. Every key
// needs a default so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 0) // 0 means no limit, large downloads stream
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("storage.path", "./data")
	v.SetDefault("static.path", "")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.verify_path", flowcloud.DefaultVerifyPath)
	v.SetDefault("auth.marker_header", flowhttp.DefaultMarkerHeader)
	v.SetDefault("auth.marker_value", flowhttp.DefaultMarkerValue)
	v.SetDefault("auth.max_skew", flowcloud.DefaultMaxSkew)
	v.SetDefault("auth.challenge_timeout", flowcloud.DefaultChallengeTimeout)
	v.SetDefault("auth.dev_mode", false)

	v.SetDefault("hosts.file", "")

	v.SetDefault("keys.backend", "file")
	v.SetDefault("keys.file", "")
	v.SetDefault("keys.ttl", 0) // 0 means keys never expire
	v.SetDefault("keys.reuse", true)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "flowcloud.db")
	v.SetDefault("database.tables.access_keys", "access_keys")

	v.SetDefault("gate.allowed_prefixes", flowhttp.DefaultAllowedPrefixes)
	v.SetDefault("gate.allowed_suffixes", flowhttp.DefaultAllowedSuffixes)

	v.SetDefault("cors.allowed_headers", flowhttp.DefaultCORSHeaders)
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("log.level", "info")

	v.SetDefault("partner.endpoint", "")
	v.SetDefault("partner.origin", "")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("FLOWCLOUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("auth.secret", "FLOWCLOUD_AUTH_SECRET", "SYSTEM_ACCESS_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.resolvePaths()

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := cfg.Database.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// resolvePaths places store files without an explicit path inside the
// storage directory, where the path normalizer refuses to serve them.
// A database key backend also selects the database type.
func (c *Config) resolvePaths() {
	if c.Hosts.File == "" {
		c.Hosts.File = filepath.Join(c.Storage.Path, DefaultHostsFile)
	}
	if c.Keys.File == "" {
		c.Keys.File = filepath.Join(c.Storage.Path, DefaultKeysFile)
	}
	if c.Keys.UsesDatabase() {
		c.Database.Type = c.Keys.Backend
	}
}

// StoreFileNames returns the base names of the configured store files.
// The gateway adds them to its denied names.
func (c *Config) StoreFileNames() []string {
	names := []string{filepath.Base(c.Hosts.File)}
	if c.Keys.Backend == "file" {
		names = append(names, filepath.Base(c.Keys.File), filepath.Base(keybackend.LockPath(c.Keys.File)))
	}
	if c.Keys.Backend == "sqlite" {
		if base := sqliteFileName(c.Database.DSN); base != "" {
			names = append(names, base, base+"-wal", base+"-shm", base+"-journal")
		}
	}
	return names
}

// sqliteFileName returns the base name of the database file a SQLite DSN
// points at, or "" for in-memory databases.
func sqliteFileName(dsn string) string {
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	dsn = strings.TrimPrefix(dsn, "file:")
	if dsn == "" || strings.Contains(dsn, ":memory:") {
		return ""
	}
	return filepath.Base(dsn)
}
