package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tombstone/internal/client"
	"github.com/alfredjeanlab/tombstone/internal/ui"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	jsonOutput bool
	tenantID   string
	authToken  string

	tombClient client.Client
)

func defaultHTTPURL() string {
	if s := os.Getenv("TOMBSTONE_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("TOMBSTONE_SERVER"); s != "" {
		return s
	}
	if a := activeRemote().GRPCAddr; a != "" {
		return a
	}
	return "localhost:9090"
}

func defaultTransport() string {
	if s := os.Getenv("TOMBSTONE_TRANSPORT"); s != "" {
		return s
	}
	return activeRemote().effectiveTransport()
}

func defaultToken() string {
	if s := os.Getenv("TOMBSTONE_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

func defaultTenant() string {
	if s := os.Getenv("TOMBSTONE_TENANT"); s != "" {
		return s
	}
	return activeRemote().TenantID
}

// newClient builds the client for the selected transport.
func newClient() (client.Client, error) {
	opts := client.Options{Token: authToken, TenantID: tenantID}
	switch transport {
	case "http":
		return client.NewHTTPClient(httpURL, opts), nil
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
}

// skipClient overrides the root pre-run for commands that work locally.
func skipClient(*cobra.Command, []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:           "tomb <command>",
	Short:         "Cascading soft delete for related records",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		tombClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tombClient != nil {
			tombClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", defaultTransport(), "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", defaultTenant(), "tenant to scope every request to")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for authentication")

	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "trash", Title: "Soft delete:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Records
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateCmd)

	// Soft delete
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(trashCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(relationshipsCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderFailure("Error: ")+err.Error())
		os.Exit(exitCode(err))
	}
}
