package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediahub/internal/wire"
)

func TestStatusWhenHubNotRunning(t *testing.T) {
	env := newCLIConfig(t)

	stdout, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "not running")

	stdout, _, err = runCLI(t, []string{"stop"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, stdout, "Hub is not running")
}

func TestQueryCommandsWithoutHubFail(t *testing.T) {
	env := newCLIConfig(t)

	_, _, err := runCLI(t, []string{"devices"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected devices to fail without a hub")
	}
	requireContains(t, err.Error(), "mediahub start")
}

func TestStatusReportsSummary(t *testing.T) {
	env := setupCLITestEnv(t)
	publishFixtures(t, env)

	stdout, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "== Hub ==")
	requireContains(t, stdout, "[OK] running")
	requireContains(t, stdout, "Devices")
	requireContains(t, stdout, "No supervised workers")

	stdout, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var decoded struct {
		Running bool         `json:"running"`
		Summary wire.Summary `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, stdout)
	}
	if !decoded.Running || decoded.Summary.Devices != 2 || decoded.Summary.Movies != 2 || decoded.Summary.TV != 1 {
		t.Fatalf("unexpected status %+v", decoded)
	}
	if decoded.Summary.Sessions < 1 {
		t.Fatalf("expected the CLI session to be counted, got %d", decoded.Summary.Sessions)
	}
}

func TestDevicesSortedByName(t *testing.T) {
	env := setupCLITestEnv(t)
	publishFixtures(t, env)

	stdout, _, err := runCLI(t, []string{"devices"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	alpha := strings.Index(stdout, "alpha lounge")
	zeta := strings.Index(stdout, "Zeta Bedroom")
	if alpha < 0 || zeta < 0 || alpha > zeta {
		t.Fatalf("expected case-insensitive name order, got:\n%s", stdout)
	}
	requireContains(t, stdout, "10.0.0.10")
}

func TestCatalogCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	publishFixtures(t, env)

	stdout, _, err := runCLI(t, []string{"movies"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("movies: %v", err)
	}
	nine := strings.Index(stdout, "Movie 9")
	ten := strings.Index(stdout, "Movie 10")
	if nine < 0 || ten < 0 || nine > ten {
		t.Fatalf("expected numeric title order, got:\n%s", stdout)
	}

	stdout, _, err = runCLI(t, []string{"tv", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("tv: %v", err)
	}
	var shows []map[string]any
	if err := json.Unmarshal([]byte(stdout), &shows); err != nil {
		t.Fatalf("decode tv json: %v", err)
	}
	if len(shows) != 1 || shows[0]["path"] != "/media/tv/Show S01E01.mkv" {
		t.Fatalf("unexpected tv catalog %+v", shows)
	}
}

func TestQueueAddAndList(t *testing.T) {
	env := setupCLITestEnv(t)
	file := filepath.Join(env.baseDir, "input", "clip.mkv")

	stdout, _, err := runCLI(t, []string{"queue", "add", file}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, stdout, "Queued "+file)

	stdout, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, stdout, "pending #1")
	requireContains(t, stdout, file)

	converter := env.peer(t, wire.SourceConverter)
	job, err := converter.ClaimJob(context.Background())
	if err != nil || job == nil {
		t.Fatalf("claim: %v %v", job, err)
	}
	if err := converter.ReportStatus(context.Background(), job.InputFile, "Transcoding to clip.mp4"); err != nil {
		t.Fatalf("report status: %v", err)
	}

	stdout, _, err = runCLI(t, []string{"queue", "list", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --json: %v", err)
	}
	var decoded map[string][]wire.Job
	if err := json.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("decode queue json: %v", err)
	}
	if len(decoded["pending"]) != 0 || len(decoded["in_flight"]) != 1 {
		t.Fatalf("unexpected queue %+v", decoded)
	}
	if decoded["in_flight"][0].Status != "Transcoding to clip.mp4" {
		t.Fatalf("unexpected in-flight status %+v", decoded["in_flight"][0])
	}
}

func TestDeviceCommandErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"launch", "10.9.9.9"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected launch on unknown device to fail")
	}
	requireContains(t, err.Error(), "Unknown Device")

	_, _, err = runCLI(t, []string{"control", "10.9.9.9", "{not json"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected control with invalid payload to fail")
	}
	requireContains(t, err.Error(), "not valid JSON")
}

func TestWorkersEmptyRoster(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"workers"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("workers: %v", err)
	}
	requireContains(t, stdout, "No supervised workers")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := newCLIConfig(t)
	target := filepath.Join(env.baseDir, "generated", "config.toml")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, stdout, "Wrote sample configuration to "+target)

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}

	stdout, _, err = runCLI(t, []string{"config", "validate"}, env.socketPath, target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, stdout, "Config path: "+target)
	requireContains(t, stdout, "== Dependencies ==")
	requireContains(t, stdout, "[OK] Ready (command: ffmpeg)")
	requireContains(t, stdout, "Configuration valid")
}

func TestCatalogEntriesFallBackToPath(t *testing.T) {
	entries := catalogEntries([]json.RawMessage{
		json.RawMessage(`{"file":"/media/b/Zulu.mkv"}`),
		json.RawMessage(`{"name":"echo"}`),
		json.RawMessage(`42`),
	})
	var titles []string
	for _, e := range entries {
		titles = append(titles, e.Title)
	}
	if got := strings.Join(titles, ","); got != "42,echo,Zulu" {
		t.Fatalf("unexpected titles %s", got)
	}
}

func TestLogsPrintsTrailingLines(t *testing.T) {
	env := newCLIConfig(t)
	logPath := env.cfg.LogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if stdout != "second\nthird\n" {
		t.Fatalf("unexpected log output %q", stdout)
	}
}
