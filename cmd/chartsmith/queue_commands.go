package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the import queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	return queueCmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearFailed bool
	var clearCompleted bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove terminal jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clearFailed && !clearCompleted {
				return fmt.Errorf("pass --failed, --completed, or both")
			}
			out := cmd.OutOrStdout()
			client := ctx.client()
			if clearFailed {
				removed, err := client.ClearQueue(cmd.Context(), "failed")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d failed job(s)\n", removed)
			}
			if clearCompleted {
				removed, err := client.ClearQueue(cmd.Context(), "completed")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d completed job(s)\n", removed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed jobs")
	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove completed jobs")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the import queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			listing, err := ctx.client().Queue(cmd.Context(), statusFilters)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, listing)
			}

			out := cmd.OutOrStdout()
			if len(listing.Jobs) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}

			rows := make([][]string, 0, len(listing.Jobs))
			for _, job := range listing.Jobs {
				rows = append(rows, []string{
					job.ID,
					job.OwnerID,
					job.SourceType,
					job.Status,
					job.Stage,
					fmt.Sprintf("%d%%", job.ProgressPercent),
					fmt.Sprintf("%d", job.Attempts),
					formatQueueTime(job.CreatedAt),
				})
			}
			table := renderTable(
				[]string{"Job", "Owner", "Source", "Status", "Stage", "Progress", "Attempts", "Created"},
				rows,
				5, 6,
			)
			fmt.Fprintln(out, table)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Filter by status (queued, processing, awaiting_review, completed, failed, cancelled)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func formatQueueTime(value string) string {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04")
}
