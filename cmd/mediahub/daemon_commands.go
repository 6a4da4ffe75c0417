package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mediahub/internal/daemonctl"
	"mediahub/internal/ipc"
	"mediahub/internal/wire"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the hub in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := hubExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, hubLaunchOptions(ctx), startWaitTimeout)
			if err != nil {
				return err
			}
			if result.Launched {
				fmt.Fprintln(stdout, "Hub not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Hub started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Hub already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the hub and its workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Hub is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Hub did not exit in time, killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Hub stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := hubExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(ctx.configValue(), exe, hubLaunchOptions(ctx), stopGracePeriod, startWaitTimeout)
			if err != nil {
				return err
			}
			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Hub did not exit in time, killed pid %d\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Hub stopped")
			}
			fmt.Fprintln(stdout, "Hub restarted")
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show hub state and worker roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			socket := ctx.socketPath()
			if !daemonctl.Reachable(socket) {
				if statusJSON {
					return writeJSON(cmd, map[string]any{"running": false, "socket": socket})
				}
				fmt.Fprintln(stdout, renderStatusLine("Hub", statusWarn, "not running", shouldColorize(stdout)))
				return nil
			}

			return ctx.withClient(func(client *ipc.Client) error {
				summary, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				workers, err := client.Workers(cmd.Context())
				if err != nil {
					return err
				}
				if statusJSON {
					return writeJSON(cmd, map[string]any{
						"running": true,
						"socket":  socket,
						"summary": summary,
						"workers": workers,
					})
				}
				renderStatus(stdout, socket, summary, workers, shouldColorize(stdout))
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(out io.Writer, socket string, summary *wire.Summary, workers []wire.WorkerStatus, colorize bool) {
	for _, line := range renderSectionHeader("Hub", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Hub", statusOK, "running", colorize))
	fmt.Fprintln(out, renderStatusLine("Socket", statusInfo, socket, colorize))
	fmt.Fprintln(out, renderStatusLine("Sessions", statusInfo, strconv.Itoa(summary.Sessions), colorize))
	fmt.Fprintln(out, renderStatusLine("Relay sessions", statusInfo, strconv.Itoa(summary.RelaySessions), colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("State", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := [][]string{
		{"Devices", strconv.Itoa(summary.Devices)},
		{"Movies", strconv.Itoa(summary.Movies)},
		{"TV", strconv.Itoa(summary.TV)},
		{"Pending jobs", strconv.Itoa(summary.PendingJobs)},
		{"In-flight jobs", strconv.Itoa(summary.InFlightJobs)},
	}
	fmt.Fprint(out, renderTable([]string{"Item", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Workers", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(workers) == 0 {
		fmt.Fprintln(out, "No supervised workers")
		return
	}
	for _, w := range workers {
		fmt.Fprintln(out, renderStatusLine(w.Name, workerKind(w.State), workerDetail(w), colorize))
	}
}

func workerDetail(w wire.WorkerStatus) string {
	detail := w.State
	switch {
	case w.PID > 0:
		detail = fmt.Sprintf("%s (pid %d)", w.State, w.PID)
	case w.ExitCode != 0:
		detail = fmt.Sprintf("%s (code %d)", w.State, w.ExitCode)
	}
	if w.Restarts > 0 {
		detail = fmt.Sprintf("%s, %d restarts", detail, w.Restarts)
	}
	return detail
}

func hubExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func hubLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath: ctx.socketOverride(),
		ConfigPath: ctx.configPath(),
	}
}
