package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"mediahub/internal/config"
	"mediahub/internal/daemon"
	"mediahub/internal/deps"
	"mediahub/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the hub and blocks until SIGINT, SIGTERM or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogPath()},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		logging.WarnWithContext(logger, "failed to write pid file", "pid_file_failed",
			logging.String("pid_file", pidPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "mediahub stop cannot find the hub process"),
			logging.String(logging.FieldErrorHint, "check permissions on the log directory"))
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("mediahub hub shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*cfg.StopTimeout())
	defer stopCancel()
	d.Stop(stopCtx)
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Int("dependency_count", len(statuses)),
	}
	for _, s := range statuses {
		attrs = append(attrs, logging.Bool(s.Name+"_available", s.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	if missing := deps.Missing(statuses); len(missing) > 0 {
		logging.WarnWithContext(logger, "dependencies missing", "dependency_missing",
			logging.String("missing", strings.Join(missing, ", ")),
			logging.String(logging.FieldImpact, "workers or conversions that need them will fail"),
			logging.String(logging.FieldErrorHint, "install the binaries or fix the commands in the config file"))
	}
}
