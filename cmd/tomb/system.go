package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the tombstone service",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := tombClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

var relationshipsCmd = &cobra.Command{
	Use:     "relationships",
	Aliases: []string{"rels"},
	Short:   "Show the cascade relationship registry",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rels, err := tombClient.Relationships(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading relationships: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rels)
		}
		if len(rels) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no relationships registered")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPRINCIPAL\tDEPENDENT\tFOREIGN KEY")
		for _, r := range rels {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Principal, r.Dependent, r.ForeignKey)
		}
		return w.Flush()
	},
}
