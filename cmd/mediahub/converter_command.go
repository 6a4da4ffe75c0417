package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mediahub/internal/converter"
	"mediahub/internal/logging"
	"mediahub/internal/wire"
)

func newConverterCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "converter",
		Short: "Run the transcode worker against the hub queue",
		Long: "Run the transcode worker. It polls the hub for queued files, runs the\n" +
			"configured encoder and reports progress until interrupted. The hub\n" +
			"normally supervises this command; run it by hand only for debugging.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			logger, err := logging.New(logging.Options{
				Level:       level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, err := ctx.dialClient(wire.SourceConverter)
			if err != nil {
				return err
			}
			defer client.Close()

			return converter.NewFromConfig(cfg, client, logger).Run(signalCtx)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}
