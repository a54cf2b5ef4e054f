package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowstate/flowcloud/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "flowcloud",
	Short:   "File gateway for allow-listed partner origins",
	Long: `FlowCloud serves files from a local directory to partner servers that
prove they hold a shared secret, and hands out per-file access keys for
capability links.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		files, _ := cmd.Flags().GetStringSlice("config")

		cfg, err := config.Load(files, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		setupLogging(cfg)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringSlice("config", nil, "config file paths, later files override earlier ones (default: ./config.yaml)")
	flags.String("storage-path", "", "storage directory path (default: ./data, env: FLOWCLOUD_STORAGE_PATH)")
	flags.String("hosts-file", "", "allowed hosts file (default: <storage-path>/allowed.json, env: FLOWCLOUD_HOSTS_FILE)")
	flags.String("keys-backend", "", "access key store: memory, file, sqlite, postgres (default: file, env: FLOWCLOUD_KEYS_BACKEND)")
	flags.String("keys-file", "", "access key file for the file backend (default: <storage-path>/keys.json)")
	flags.String("db-type", "", "database type for the sqlite and postgres key backends (default: sqlite)")
	flags.String("db-dsn", "", "database connection string (default: flowcloud.db, env: FLOWCLOUD_DATABASE_DSN)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default: info)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
