package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mediahub/internal/ipc"
)

func newWorkersCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Show the supervised worker roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				workers, err := client.Workers(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, workers)
				}
				out := cmd.OutOrStdout()
				if len(workers) == 0 {
					fmt.Fprintln(out, "No supervised workers")
					return nil
				}
				rows := make([][]string, 0, len(workers))
				for _, w := range workers {
					pid := "-"
					if w.PID > 0 {
						pid = strconv.Itoa(w.PID)
					}
					rows = append(rows, []string{w.Name, w.State, pid, strconv.Itoa(w.ExitCode), strconv.Itoa(w.Restarts)})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Name", "State", "PID", "Exit", "Restarts"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
