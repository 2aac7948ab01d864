package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pevans/archivist/journal"
)

func newHistoryCmd(opts *options) *cobra.Command {
	var site, format, runID string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent archive runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}

			j, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer j.Close()

			if runID != "" {
				id, err := uuid.Parse(runID)
				if err != nil {
					return fmt.Errorf("invalid run ID %q: %w", runID, err)
				}
				outcomes, err := j.Outcomes(id)
				if err != nil {
					return err
				}
				switch format {
				case "json":
					return printOutcomesJSON(cmd.OutOrStdout(), outcomes)
				case "table":
					printOutcomesTable(cmd.OutOrStdout(), outcomes)
					return nil
				default:
					return fmt.Errorf("unknown format %q (use table or json)", format)
				}
			}

			runs, err := j.ListRuns(site, limit)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return printRunsJSON(cmd.OutOrStdout(), runs)
			case "table":
				printRunsTable(cmd.OutOrStdout(), runs)
				return nil
			default:
				return fmt.Errorf("unknown format %q (use table or json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "Only show runs for this site")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "Show the per-post outcomes of this run")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}
