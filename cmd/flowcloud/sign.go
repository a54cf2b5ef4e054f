package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/config"
)

var signCmd = &cobra.Command{
	Use:   "sign <path>",
	Short: "Print the headers of a timestamped proxy request",
	Long: `Sign a file path with the shared secret and print the headers a partner
sends to /api/proxy/files/<path>.

Examples:
  flowcloud sign docs/report.pdf

  # Sign for a fixed epoch-millisecond timestamp
  flowcloud sign --at 1714557600000 docs/report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

var signAt int64

func init() {
	signCmd.Flags().Int64Var(&signAt, "at", 0, "epoch milliseconds to sign for (default: now)")
	rootCmd.AddCommand(signCmd)
}

func runSign(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	if cfg.Auth.Secret == "" {
		return errors.New("sign: auth.secret is not configured")
	}

	p, err := flowcloud.NormalizePath(args[0])
	if err != nil {
		return fmt.Errorf("sign %s: %w", args[0], err)
	}

	at := time.Now()
	if signAt != 0 {
		at = time.UnixMilli(signAt)
	}

	signed := flowcloud.NewSignedRequest(cfg.Auth.Secret, p, at)

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%s: %s\n", cfg.Auth.MarkerHeader, cfg.Auth.MarkerValue)
	_, _ = fmt.Fprintf(out, "%s: %s\n", flowcloud.HeaderDate, signed.Date())
	_, _ = fmt.Fprintf(out, "%s: %s\n", flowcloud.HeaderSignature, signed.Signature)
	return nil
}
