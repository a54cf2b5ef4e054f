package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowstate/flowcloud/config"
	"github.com/flowstate/flowcloud/partner"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [flags] <path>",
	Short: "Fetch a file from a gateway as a partner would",
	Long: `Call a remote gateway with the partner client.

By default the file is fetched through the signed proxy route. With
--describe the metadata route is called instead and the issued access key
is printed. With --key the public capability link is used.

Examples:
  # Fetch through the proxy route to stdout
  flowcloud fetch --endpoint https://files.example.com --origin https://partner.example.com docs/report.pdf

  # Save to a file
  flowcloud fetch -o report.pdf docs/report.pdf

  # Request metadata and an access key
  flowcloud fetch --describe docs/report.pdf

  # Download with an access key
  flowcloud fetch --key 0123456789abcdef0123 docs/report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var (
	fetchOutput   string
	fetchDescribe bool
	fetchKey      string
)

func init() {
	fetchCmd.Flags().String("endpoint", "", "gateway base URL (env: FLOWCLOUD_PARTNER_ENDPOINT)")
	fetchCmd.Flags().String("origin", "", "origin to present, as listed in the gateway's allowed hosts (env: FLOWCLOUD_PARTNER_ORIGIN)")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "-", "output file, - for stdout")
	fetchCmd.Flags().BoolVar(&fetchDescribe, "describe", false, "print file metadata instead of content")
	fetchCmd.Flags().StringVar(&fetchKey, "key", "", "download through the capability link with this access key")
	fetchCmd.MarkFlagsMutuallyExclusive("describe", "key")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	client, err := partner.New(partner.Config{
		Endpoint:     cfg.Partner.Endpoint,
		Origin:       cfg.Partner.Origin,
		Secret:       cfg.Auth.Secret,
		MarkerHeader: cfg.Auth.MarkerHeader,
		MarkerValue:  cfg.Auth.MarkerValue,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	if fetchDescribe {
		meta, descErr := client.Describe(ctx, args[0])
		if descErr != nil {
			return descErr
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(meta); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Link: %s\n", client.Link(meta.Path, meta.AccessKey))
		return nil
	}

	var file *partner.File
	if fetchKey != "" {
		file, err = client.Download(ctx, args[0], fetchKey)
	} else {
		file, err = client.Fetch(ctx, args[0])
	}
	if err != nil {
		return err
	}
	defer func() { _ = file.Body.Close() }()

	written, err := writeOutput(cmd.OutOrStdout(), fetchOutput, file.Body)
	if err != nil {
		return err
	}

	slog.Info("fetched", "path", file.Path, "content_type", file.ContentType, "bytes", written)
	return nil
}

// writeOutput copies r to the named file, or to stdout for "-".
func writeOutput(stdout io.Writer, name string, r io.Reader) (int64, error) {
	if name == "" || name == "-" {
		return io.Copy(stdout, r)
	}

	f, err := os.Create(name)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(name)
		return n, fmt.Errorf("write output: %w", err)
	}
	return n, nil
}
