package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mediahub/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It binds the relay to an ephemeral loopback port and supervises no
// workers unless WithWorkers is applied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SocketPath = filepath.Join(base, "hub.sock")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Relay.Bind = "127.0.0.1:0"
	cfgVal.Relay.Timeout = 1
	cfgVal.Hub.WatchdogInterval = 1
	cfgVal.Supervisor.BackoffInitial = 1
	cfgVal.Supervisor.StopTimeout = 2
	cfgVal.Converter.OutputDir = filepath.Join(base, "media")
	cfgVal.Workers = nil

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers replaces the supervised worker roster.
func WithWorkers(workers ...config.Worker) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workers = workers
	}
}

// WithMetricsDisabled turns off the /metrics endpoint.
func WithMetricsDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Enabled = false
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SocketPath)
}
