package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"mediahub/internal/config"
	"mediahub/internal/daemon"
	"mediahub/internal/ipc"
	"mediahub/internal/logging"
	"mediahub/internal/testsupport"
	"mediahub/internal/wire"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	socketPath string
	configPath string
	baseDir    string
}

// newCLIConfig writes a config for an isolated HOME and returns it without
// starting a hub.
func newCLIConfig(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithMetricsDisabled(), testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("MEDIAHUB_SOCKET", "")
	t.Setenv("MEDIAHUB_LOG_LEVEL", "")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
		baseDir:    base,
	}
}

// setupCLITestEnv starts a hub in-process on the test config.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	env := newCLIConfig(t)
	d, err := daemon.New(env.cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	env.daemon = d
	return env
}

// peer dials the hub as a non-CLI source.
func (e *cliTestEnv) peer(t *testing.T, source string) *ipc.Client {
	t.Helper()
	client, err := ipc.Dial(e.socketPath, source, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", source, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func publishFixtures(t *testing.T, env *cliTestEnv) {
	t.Helper()
	ctx := context.Background()
	discoverer := env.peer(t, wire.SourceDiscoverer)
	if err := discoverer.PublishDevices(ctx, []wire.Device{
		{"address": "10.0.0.20", "name": "Zeta Bedroom"},
		{"address": "10.0.0.10", "name": "alpha lounge"},
	}); err != nil {
		t.Fatalf("publish devices: %v", err)
	}

	scanner := env.peer(t, wire.SourceScanner)
	if err := scanner.PublishCatalog(ctx,
		[]json.RawMessage{
			json.RawMessage(`{"title":"Movie 10","path":"/media/Movie 10.mkv"}`),
			json.RawMessage(`{"title":"Movie 9","path":"/media/Movie 9.mkv"}`),
		},
		[]json.RawMessage{json.RawMessage(`{"path":"/media/tv/Show S01E01.mkv"}`)},
		nil,
	); err != nil {
		t.Fatalf("publish catalog: %v", err)
	}
}
