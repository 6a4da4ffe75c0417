package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediahub/internal/ipc"
)

func newDeviceCommands(ctx *commandContext) []*cobra.Command {
	var devicesJSON bool
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List cast devices reported by the discoverer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				devices, err := client.Devices(cmd.Context())
				if err != nil {
					return err
				}
				sortDevices(devices)
				if devicesJSON {
					return writeJSON(cmd, devices)
				}
				out := cmd.OutOrStdout()
				if len(devices) == 0 {
					fmt.Fprintln(out, "No devices discovered")
					return nil
				}
				rows := make([][]string, 0, len(devices))
				for _, d := range devices {
					rows = append(rows, []string{d.Name(), d.Address()})
				}
				fmt.Fprint(out, renderTable([]string{"Name", "Address"}, rows, nil))
				return nil
			})
		},
	}
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "Output as JSON")

	launchCmd := &cobra.Command{
		Use:   "launch <addr>",
		Short: "Start the receiver application on a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Launch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Launch sent to %s (%s)\n", args[0], statusOrOK(status))
				return nil
			})
		},
	}

	exitCmd := &cobra.Command{
		Use:   "exit <addr>",
		Short: "Stop the receiver application on a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Exit(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exit sent to %s (%s)\n", args[0], statusOrOK(status))
				return nil
			})
		},
	}

	controlCmd := &cobra.Command{
		Use:   "control <addr> <json>",
		Short: "Forward a JSON payload to the receiver relay for a device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := json.RawMessage(strings.TrimSpace(args[1]))
			if !json.Valid(payload) {
				return fmt.Errorf("payload is not valid JSON: %s", args[1])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				reply, err := client.Control(cmd.Context(), args[0], payload)
				if err != nil {
					return err
				}
				if len(reply) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "OK")
					return nil
				}
				var decoded any
				if err := json.Unmarshal(reply, &decoded); err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), string(reply))
					return nil
				}
				return writeJSON(cmd, decoded)
			})
		},
	}

	return []*cobra.Command{devicesCmd, launchCmd, exitCmd, controlCmd}
}

func statusOrOK(status string) string {
	if strings.TrimSpace(status) == "" {
		return "OK"
	}
	return status
}
