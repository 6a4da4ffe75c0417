package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediahub/internal/ipc"
	"mediahub/internal/wire"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and feed the transcode queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show pending and in-flight jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				pending, inFlight, err := client.Queue(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string][]wire.Job{
						"pending":   nonNilJobs(pending),
						"in_flight": nonNilJobs(inFlight),
					})
				}
				out := cmd.OutOrStdout()
				if len(pending) == 0 && len(inFlight) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(pending)+len(inFlight))
				for _, job := range inFlight {
					rows = append(rows, queueRow("in flight", job))
				}
				for i, job := range pending {
					rows = append(rows, queueRow("pending #"+strconv.Itoa(i+1), job))
				}
				fmt.Fprint(out, renderTable([]string{"State", "File", "Status"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>...",
		Short: "Queue files for transcoding",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					file, err := filepath.Abs(strings.TrimSpace(arg))
					if err != nil {
						return fmt.Errorf("resolve %q: %w", arg, err)
					}
					if _, err := client.Enqueue(cmd.Context(), file); err != nil {
						return fmt.Errorf("queue %s: %w", file, err)
					}
					fmt.Fprintf(out, "Queued %s\n", file)
				}
				return nil
			})
		},
	}
}

func queueRow(state string, job wire.Job) []string {
	status := job.Status
	if status == "" {
		status = "-"
	}
	return []string{state, job.InputFile, status}
}

func nonNilJobs(jobs []wire.Job) []wire.Job {
	if jobs == nil {
		return []wire.Job{}
	}
	return jobs
}
