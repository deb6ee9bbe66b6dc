package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net"
	"net/url"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tombstone/internal/client"
	"github.com/alfredjeanlab/tombstone/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named server remotes",
	GroupID: "system",
	// Remote subcommands read and write the local remotes file and build
	// their own clients.
	PersistentPreRunE: skipClient,
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a remote, or update the settings given as flags",
	Long: `Add a remote, or update an existing one.

When the remote already exists, only the flags given on the command line
replace its settings; the rest are kept.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		r, existed := cfg.Remotes[name]
		r.URL = args[1]
		applyRemoteFlags(cmd, &r)
		if err := validateRemote(r); err != nil {
			return fmt.Errorf("remote %q: %w", name, err)
		}
		cfg.Remotes[name] = r
		if err := saveRemotesConfig(cfg); err != nil {
			return err
		}
		verb := "added"
		if existed {
			verb = "updated"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q %s (%s)\n", name, verb, remoteSummary(r))
		return nil
	},
}

// applyRemoteFlags copies the flags set on cmd into r.
func applyRemoteFlags(cmd *cobra.Command, r *Remote) {
	for flag, field := range map[string]*string{
		"grpc":      &r.GRPCAddr,
		"token":     &r.Token,
		"tenant":    &r.TenantID,
		"nats":      &r.NATSURL,
		"transport": &r.Transport,
	} {
		if cmd.Flags().Changed(flag) {
			*field, _ = cmd.Flags().GetString(flag)
		}
	}
}

// validateRemote checks the addresses a client will dial.
func validateRemote(r Remote) error {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be an http or https URL", r.URL)
	}
	if r.GRPCAddr != "" {
		if _, _, err := net.SplitHostPort(r.GRPCAddr); err != nil {
			return fmt.Errorf("grpc address %q must be host:port", r.GRPCAddr)
		}
	}
	switch r.Transport {
	case "", "http":
	case "grpc":
		if r.GRPCAddr == "" {
			return fmt.Errorf("transport grpc needs a grpc address (--grpc)")
		}
	default:
		return fmt.Errorf("unknown transport %q (must be http or grpc)", r.Transport)
	}
	return nil
}

// remoteSummary describes where a remote's requests go.
func remoteSummary(r Remote) string {
	parts := []string{r.effectiveTransport()}
	if r.GRPCAddr != "" {
		parts = append(parts, "grpc "+r.GRPCAddr)
	}
	if r.TenantID != "" {
		parts = append(parts, "tenant "+r.TenantID)
	}
	return r.URL + ", " + strings.Join(parts, ", ")
}

// remoteNamed returns the remote called name, or the active one when name
// is empty.
func remoteNamed(cfg RemotesConfig, name string) (string, Remote, error) {
	if name == "" {
		name = cfg.Active
	}
	if name == "" {
		return "", Remote{}, fmt.Errorf("no active remote; specify a name or run 'tomb remote use <name>'")
	}
	r, ok := cfg.Remotes[name]
	if !ok {
		return "", Remote{}, fmt.Errorf("remote %q not found", name)
	}
	return name, r, nil
}

func optionalArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		name, _, err := remoteNamed(cfg, args[0])
		if err != nil {
			return err
		}
		delete(cfg.Remotes, name)
		if cfg.Active == name {
			cfg.Active = ""
		}
		if err := saveRemotesConfig(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", name)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		if len(cfg.Remotes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no remotes configured")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tTRANSPORT\tURL\tGRPC\tTENANT\tTOKEN")
		for _, name := range slices.Sorted(maps.Keys(cfg.Remotes)) {
			r := cfg.Remotes[name]
			marker := "  "
			if name == cfg.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\t%s\n", marker, name, r.effectiveTransport(), r.URL,
				orDash(r.GRPCAddr), orDash(r.TenantID), orDash(maskToken(r.Token, 8, func(int) string { return "..." })))
		}
		return w.Flush()
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		name, r, err := remoteNamed(cfg, args[0])
		if err != nil {
			return err
		}
		cfg.Active = name
		if err := saveRemotesConfig(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q (%s)\n", name, remoteSummary(r))
		return nil
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show details for a remote (defaults to active)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		name, r, err := remoteNamed(cfg, optionalArg(args))
		if err != nil {
			return err
		}
		return describeRemote(cmd.OutOrStdout(), name, r, name == cfg.Active)
	},
}

// describeRemote writes every setting of r, one per line. Unset settings
// show where the CLI falls back to.
func describeRemote(out io.Writer, name string, r Remote, active bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	suffix := ""
	if active {
		suffix = " (active)"
	}
	fmt.Fprintf(w, "name:\t%s%s\n", name, suffix)
	fmt.Fprintf(w, "transport:\t%s\n", r.effectiveTransport())
	fmt.Fprintf(w, "url:\t%s\n", r.URL)
	fmt.Fprintf(w, "grpc_addr:\t%s\n", orDefault(r.GRPCAddr, "localhost:9090"))
	fmt.Fprintf(w, "tenant:\t%s\n", orDefault(r.TenantID, "all tenants"))
	fmt.Fprintf(w, "token:\t%s\n", orDefault(maskToken(r.Token, 8, func(n int) string { return strings.Repeat("*", n) }), "none"))
	fmt.Fprintf(w, "nats_url:\t%s\n", orDefault(r.NATSURL, "none, watch uses the HTTP event stream"))
	return w.Flush()
}

var remoteCheckCmd = &cobra.Command{
	Use:   "check [<name>]",
	Short: "Check that a remote answers on each configured transport",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		name, r, err := remoteNamed(cfg, optionalArg(args))
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return checkRemote(cmd.Context(), cmd.OutOrStdout(), name, r, timeout)
	},
}

// checkRemote calls Health over HTTP, and over gRPC when the remote has a
// gRPC address. It fails if any transport does not answer.
func checkRemote(ctx context.Context, out io.Writer, name string, r Remote, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := client.Options{Token: r.Token, TenantID: r.TenantID}
	checks := []transportCheck{
		{"http", r.URL, func() (client.Client, error) { return client.NewHTTPClient(r.URL, opts), nil }},
	}
	if r.GRPCAddr != "" {
		checks = append(checks, transportCheck{"grpc", r.GRPCAddr, func() (client.Client, error) {
			return client.NewGRPCClient(r.GRPCAddr, opts)
		}})
	}

	var failed []string
	for _, c := range checks {
		status, err := pingRemote(ctx, c.dial, timeout)
		if err != nil {
			failed = append(failed, c.transport)
			fmt.Fprintf(out, "%s %s %s: %v\n", ui.RenderFailure("✗"), c.transport, c.addr, err)
			continue
		}
		fmt.Fprintf(out, "%s %s %s: %s\n", ui.RenderOK("✓"), c.transport, c.addr, status)
	}
	if len(failed) > 0 {
		return fmt.Errorf("remote %q unreachable over %s", name, strings.Join(failed, ", "))
	}
	return nil
}

// transportCheck is one transport checkRemote calls Health on.
type transportCheck struct {
	transport string
	addr      string
	dial      func() (client.Client, error)
}

func pingRemote(ctx context.Context, dial func() (client.Client, error), timeout time.Duration) (string, error) {
	c, err := dial()
	if err != nil {
		return "", err
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Health(ctx)
}

func orDash(s string) string {
	return orDefault(s, "-")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	remoteAddCmd.Flags().String("grpc", "", "gRPC server address (host:port)")
	remoteAddCmd.Flags().String("token", "", "bearer token for authentication")
	remoteAddCmd.Flags().String("tenant", "", "tenant to scope requests to")
	remoteAddCmd.Flags().String("nats", "", "NATS URL for event streaming")
	remoteAddCmd.Flags().String("transport", "", "default transport for this remote (http or grpc)")
	remoteCheckCmd.Flags().Duration("timeout", 5*time.Second, "per-transport health check timeout")

	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteRemoveCmd)
	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remoteUseCmd)
	remoteCmd.AddCommand(remoteShowCmd)
	remoteCmd.AddCommand(remoteCheckCmd)
}
