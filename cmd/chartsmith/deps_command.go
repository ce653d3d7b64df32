package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check availability of the external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().DaemonStatus(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status.Dependencies)
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(status.Dependencies))
			for _, dep := range status.Dependencies {
				detail := dep.Detail
				if dep.Available && detail == "" {
					detail = "ready"
				}
				rows = append(rows, []string{
					dep.Name,
					dep.Command,
					yesNo(dep.Available),
					yesNo(dep.Optional),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Dependency", "Command", "Available", "Optional", "Detail"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
