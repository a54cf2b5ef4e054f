package main

import (
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/config"
	"github.com/flowstate/flowcloud/partner"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Issue and inspect per-file access keys",
	Long: `Issue and inspect the access keys behind capability links.

Keys are never revoked; set keys.ttl to let them expire.

Examples:
  # Issue a key and print the capability link
  flowcloud keys issue docs/report.pdf

  # List keys for one file
  flowcloud keys list docs/report.pdf

  # List keys for every stored file
  flowcloud keys list`,
}

var keysIssueCmd = &cobra.Command{
	Use:   "issue <path>",
	Short: "Issue a new access key for a stored file",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysIssue,
}

var keysListCmd = &cobra.Command{
	Use:   "list [path]",
	Short: "List access keys",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKeysList,
}

func init() {
	keysCmd.AddCommand(keysIssueCmd, keysListCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeysIssue(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	gateway, vault, storage, cleanup, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := gateway.Normalize(args[0])
	if err != nil {
		return fmt.Errorf("issue %s: %w", args[0], err)
	}
	if _, err := storage.Stat(ctx, p); err != nil {
		return fmt.Errorf("issue %s: %w", p, err)
	}

	token, err := vault.Issue(ctx, p)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Key:  %s\n", token)
	_, _ = fmt.Fprintf(out, "Link: %s\n", capabilityLink(cfg, p, token))
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	gateway, vault, storage, cleanup, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var paths []string
	if len(args) == 1 {
		p, normErr := gateway.Normalize(args[0])
		if normErr != nil {
			return fmt.Errorf("list %s: %w", args[0], normErr)
		}
		paths = []string{p}
	} else {
		entries, listErr := storage.List(ctx)
		if listErr != nil {
			return listErr
		}
		for _, e := range entries {
			paths = append(paths, e.Path)
		}
	}

	rows := make([]keyRow, 0, len(paths))
	for _, p := range paths {
		keys, keysErr := vault.Keys(ctx, p)
		if keysErr != nil {
			return fmt.Errorf("list keys for %s: %w", p, keysErr)
		}
		for _, k := range keys {
			rows = append(rows, keyRow{Path: p, Key: k, Expired: vault.Expired(k)})
		}
	}

	return writeKeyTable(cmd.OutOrStdout(), rows)
}

type keyRow struct {
	Path    string
	Key     flowcloud.AccessKey
	Expired bool
}

func writeKeyTable(w io.Writer, rows []keyRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No access keys.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PATH\tKEY\tISSUED\tSTATUS")
	for _, r := range rows {
		issued := "-"
		if !r.Key.IssuedAt.IsZero() {
			issued = r.Key.IssuedAt.UTC().Format(time.RFC3339)
		}
		status := "live"
		if r.Expired {
			status = "expired"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Path, r.Key.Token, issued, status)
	}
	return tw.Flush()
}

// capabilityLink returns the public link for path and token, absolute when
// a gateway endpoint is configured.
func capabilityLink(cfg *config.Config, p, token string) string {
	client, err := partner.New(partner.Config{Endpoint: cfg.Partner.Endpoint})
	if err == nil {
		return client.Link(p, token)
	}

	u := url.URL{Path: "/files/" + p, RawQuery: url.Values{"key": {token}}.Encode()}
	return u.String()
}
