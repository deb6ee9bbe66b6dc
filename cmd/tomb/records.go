package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// parseFields validates a --fields argument as a JSON object.
func parseFields(s string) (json.RawMessage, error) {
	if s == "" {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("--fields must be a JSON object: %w", err)
	}
	return json.RawMessage(s), nil
}

var createCmd = &cobra.Command{
	Use:     "create <type> [<id>]",
	Short:   "Create a record",
	GroupID: "records",
	Example: `  tomb create company XYZ
  tomb create quote --fields '{"company_id":"XYZ"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("fields")
		fields, err := parseFields(raw)
		if err != nil {
			return err
		}
		id := ""
		if len(args) == 2 {
			id = args[1]
		}
		rec, err := tombClient.CreateRecord(cmd.Context(), args[0], id, fields)
		if err != nil {
			return fmt.Errorf("creating record: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rec)
		}
		printRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:     "get <type/id>",
	Short:   "Show a visible record",
	GroupID: "records",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := model.ParseKey(args[0])
		if err != nil {
			return err
		}
		rec, err := tombClient.GetRecord(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("getting %s: %w", key, err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rec)
		}
		printRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list <type>",
	Short:   "List visible records of a type",
	GroupID: "records",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := tombClient.ListRecords(cmd.Context(), args[0], limit)
		if err != nil {
			return fmt.Errorf("listing %s: %w", args[0], err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), recs)
		}
		printRecordList(cmd.OutOrStdout(), recs, "records")
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <type/id>",
	Short:   "Replace a record's fields",
	GroupID: "records",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := model.ParseKey(args[0])
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetString("fields")
		if raw == "" {
			return fmt.Errorf("--fields is required")
		}
		fields, err := parseFields(raw)
		if err != nil {
			return err
		}
		version, _ := cmd.Flags().GetInt64("version")
		rec, err := tombClient.UpdateFields(cmd.Context(), key, fields, version)
		if err != nil {
			return fmt.Errorf("updating %s: %w", key, err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rec)
		}
		printRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

func init() {
	createCmd.Flags().String("fields", "", "record fields as a JSON object")
	listCmd.Flags().Int("limit", 0, "maximum number of records (0 = server default)")
	updateCmd.Flags().String("fields", "", "new fields as a JSON object")
	updateCmd.Flags().Int64("version", 0, "expected current version (0 = skip check)")
}
