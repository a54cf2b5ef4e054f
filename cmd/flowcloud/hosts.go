package main

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/config"
	"github.com/flowstate/flowcloud/hostbackend"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage the allowed origins",
	Long: `Manage the allowed hosts file read by the gateway.

Examples:
  # Show allowed origins and dev mode
  flowcloud hosts list

  # Allow a partner origin
  flowcloud hosts add https://partner.example.com

  # Revoke an origin without a prompt
  flowcloud hosts remove --yes https://partner.example.com

  # Turn dev mode on
  flowcloud hosts dev-mode on`,
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List allowed origins",
	Args:  cobra.NoArgs,
	RunE:  runHostsList,
}

var hostsAddCmd = &cobra.Command{
	Use:   "add <origin> [origin] ...",
	Short: "Allow one or more origins",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHostsAdd,
}

var hostsRemoveCmd = &cobra.Command{
	Use:   "remove <origin> [origin] ...",
	Short: "Revoke one or more origins",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHostsRemove,
}

var hostsDevModeCmd = &cobra.Command{
	Use:       "dev-mode <on|off>",
	Short:     "Turn the origin check bypass on or off",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runHostsDevMode,
}

var hostsYes bool

func init() {
	hostsCmd.PersistentFlags().BoolVarP(&hostsYes, "yes", "y", false, "do not ask for confirmation")

	hostsCmd.AddCommand(hostsListCmd, hostsAddCmd, hostsRemoveCmd, hostsDevModeCmd)
	rootCmd.AddCommand(hostsCmd)
}

func hostStore(cmd *cobra.Command) (flowcloud.HostStore, error) {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	return hostbackend.NewHostStore(cfg.Hosts.File), nil
}

func runHostsList(cmd *cobra.Command, args []string) error {
	store, err := hostStore(cmd)
	if err != nil {
		return err
	}

	allowed, err := store.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load hosts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(allowed.AllowedHosts) == 0 {
		_, _ = fmt.Fprintln(out, "No allowed origins.")
	}
	for _, h := range allowed.AllowedHosts {
		_, _ = fmt.Fprintln(out, h)
	}
	_, _ = fmt.Fprintf(out, "Dev mode: %s\n", onOff(allowed.DevMode))
	return nil
}

func runHostsAdd(cmd *cobra.Command, args []string) error {
	store, err := hostStore(cmd)
	if err != nil {
		return err
	}

	allowed, err := store.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load hosts: %w", err)
	}

	allowed, added, err := addHosts(allowed, args)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing to add.")
		return nil
	}

	if err := store.Save(cmd.Context(), allowed); err != nil {
		return fmt.Errorf("save hosts: %w", err)
	}

	for _, h := range added {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Allowed: %s\n", h)
	}
	return nil
}

func runHostsRemove(cmd *cobra.Command, args []string) error {
	store, err := hostStore(cmd)
	if err != nil {
		return err
	}

	allowed, err := store.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load hosts: %w", err)
	}

	allowed, removed := removeHosts(allowed, args)
	if len(removed) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No matching origins.")
		return nil
	}

	ok, err := confirm(fmt.Sprintf("Revoke %s", strings.Join(removed, ", ")))
	if err != nil || !ok {
		return err
	}

	if err := store.Save(cmd.Context(), allowed); err != nil {
		return fmt.Errorf("save hosts: %w", err)
	}

	for _, h := range removed {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Revoked: %s\n", h)
	}
	return nil
}

func runHostsDevMode(cmd *cobra.Command, args []string) error {
	on, err := parseOnOff(args[0])
	if err != nil {
		return err
	}

	store, err := hostStore(cmd)
	if err != nil {
		return err
	}

	allowed, err := store.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load hosts: %w", err)
	}

	if allowed.DevMode == on {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Dev mode already %s.\n", onOff(on))
		return nil
	}

	if on {
		ok, err := confirm("Enable dev mode and skip origin checks for every caller")
		if err != nil || !ok {
			return err
		}
	}

	allowed.DevMode = on
	if err := store.Save(cmd.Context(), allowed); err != nil {
		return fmt.Errorf("save hosts: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Dev mode %s.\n", onOff(on))
	return nil
}

// confirm asks a yes/no question unless --yes was given. A declined or
// aborted prompt is not an error.
func confirm(label string) (bool, error) {
	if hostsYes {
		return true, nil
	}

	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			fmt.Println("Cancelled.")
			return false, nil
		}
		return false, fmt.Errorf("prompt: %w", err)
	}
	return true, nil
}

// normalizeOrigin validates an origin and returns its canonical
// scheme://host[:port] form.
func normalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid origin %q: scheme must be http or https", raw)
	}
	if u.Host == "" || u.User != nil {
		return "", fmt.Errorf("invalid origin %q: host required", raw)
	}
	if strings.Trim(u.Path, "/") != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("invalid origin %q: must not carry a path, query or fragment", raw)
	}

	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

// addHosts appends the origins in raw that are not already allowed.
func addHosts(allowed flowcloud.AllowedConfig, raw []string) (flowcloud.AllowedConfig, []string, error) {
	var added []string
	hosts := slices.Clone(allowed.AllowedHosts)

	for _, r := range raw {
		origin, err := normalizeOrigin(r)
		if err != nil {
			return allowed, nil, err
		}
		if (flowcloud.AllowedConfig{AllowedHosts: hosts}).IsAllowed(origin) {
			continue
		}
		hosts = append(hosts, origin)
		added = append(added, origin)
	}

	allowed.AllowedHosts = hosts
	return allowed, added, nil
}

// removeHosts drops every entry that matches one of raw, using the same
// comparison as the gateway.
func removeHosts(allowed flowcloud.AllowedConfig, raw []string) (flowcloud.AllowedConfig, []string) {
	var removed []string
	hosts := make([]string, 0, len(allowed.AllowedHosts))

	for _, h := range allowed.AllowedHosts {
		entry := flowcloud.AllowedConfig{AllowedHosts: []string{h}}
		if slices.ContainsFunc(raw, entry.IsAllowed) {
			removed = append(removed, h)
			continue
		}
		hosts = append(hosts, h)
	}

	allowed.AllowedHosts = hosts
	return allowed, removed
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return b, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
