package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newStatusCommand reports either one job's progress (with an id argument)
// or the daemon's overall health (without).
func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show daemon health or the progress of one import job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runJobStatus(ctx, cmd, args[0], jsonOut)
			}
			return runDaemonStatus(ctx, cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func runJobStatus(ctx *commandContext, cmd *cobra.Command, jobID string, jsonOut bool) error {
	owner, err := ctx.owner()
	if err != nil {
		return err
	}
	status, err := ctx.client().withOwner(owner).JobStatus(cmd.Context(), jobID)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(cmd, status)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", status.ID)
	fmt.Fprintf(out, "Source:   %s\n", status.SourceType)
	fmt.Fprintf(out, "Status:   %s\n", status.Status)
	fmt.Fprintf(out, "Stage:    %s (%d%%)\n", status.Stage, status.ProgressPercent)
	if status.LevelID != "" {
		fmt.Fprintf(out, "Level:    %s\n", status.LevelID)
	}
	if status.Result != nil && len(status.Result.Warnings) > 0 {
		fmt.Fprintln(out, "Warnings:")
		for _, warning := range status.Result.Warnings {
			fmt.Fprintf(out, "  - %s: %s\n", warning.Code, warning.Message)
		}
	}
	if status.Error != nil {
		fmt.Fprintf(out, "Error:    %s (%s)\n", status.Error.Message, status.Error.Code)
	}
	return nil
}

func runDaemonStatus(ctx *commandContext, cmd *cobra.Command, jsonOut bool) error {
	status, err := ctx.client().DaemonStatus(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(cmd, status)
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	printSection(out, "Daemon", colorize)
	runningKind := statusError
	runningMessage := "not running"
	if status.Running {
		runningKind = statusOK
		runningMessage = "running"
	}
	fmt.Fprintln(out, renderStatusLine("Workflow", runningKind, runningMessage, colorize))
	fmt.Fprintln(out, renderStatusLine("Worker", statusInfo, status.WorkerID, colorize))
	fmt.Fprintln(out)

	printSection(out, "Dependencies", colorize)
	for _, line := range dependencyLines(status.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	printSection(out, "Queue", colorize)
	rows := [][]string{
		{"queued", fmt.Sprintf("%d", status.Queue.Queued)},
		{"processing", fmt.Sprintf("%d", status.Queue.Processing)},
		{"awaiting_review", fmt.Sprintf("%d", status.Queue.AwaitingReview)},
		{"failed", fmt.Sprintf("%d", status.Queue.Failed)},
		{"completed", fmt.Sprintf("%d", status.Queue.Completed)},
	}
	if status.Queue.Total == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return nil
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, 1))
	return nil
}

func dependencyLines(deps []dependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	missing := make([]string, 0)
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		if !dep.Optional {
			missing = append(missing, dep.Name)
		}
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}
