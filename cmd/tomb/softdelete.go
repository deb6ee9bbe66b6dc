package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <type/id>...",
	Short:   "Soft delete records and everything that depends on them",
	GroupID: "trash",
	Long: `Soft delete hides each record and, through the relationship registry,
every record that depends on it. The records stay in the store and can be
restored with "tomb reset".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := model.ParseKeys(args)
		if err != nil {
			return err
		}
		res, err := tombClient.SoftDelete(cmd.Context(), keys...)
		if err != nil {
			return fmt.Errorf("soft deleting: %w", err)
		}
		return printResult(cmd.OutOrStdout(), "deleted", res)
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset <type/id>...",
	Short:   "Restore directly soft-deleted records and their cascade",
	GroupID: "trash",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := model.ParseKeys(args)
		if err != nil {
			return err
		}
		res, err := tombClient.ResetSoftDelete(cmd.Context(), keys...)
		if err != nil {
			return fmt.Errorf("resetting: %w", err)
		}
		return printResult(cmd.OutOrStdout(), "restored", res)
	},
}

var purgeCmd = &cobra.Command{
	Use:     "purge <type/id>...",
	Short:   "Permanently remove soft-deleted records",
	GroupID: "trash",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := model.ParseKeys(args)
		if err != nil {
			return err
		}
		res, err := tombClient.HardDeleteIfSoftDeleted(cmd.Context(), keys...)
		if err != nil {
			return fmt.Errorf("purging: %w", err)
		}
		return printResult(cmd.OutOrStdout(), "purged", res)
	},
}

var trashCmd = &cobra.Command{
	Use:     "trash <type>",
	Short:   "List directly soft-deleted records of a type",
	GroupID: "trash",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := tombClient.ListSoftDeleted(cmd.Context(), args[0], limit)
		if err != nil {
			return fmt.Errorf("listing trash: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), recs)
		}
		printRecordList(cmd.OutOrStdout(), recs, "soft-deleted records")
		return nil
	},
}

func init() {
	trashCmd.Flags().Int("limit", 0, "maximum number of records (0 = server default)")
}
