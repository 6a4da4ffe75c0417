package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains filesystem locations used by the hub.
type Paths struct {
	SocketPath string `toml:"socket_path"`
	LogDir     string `toml:"log_dir"`
}

// Hub contains event loop and connection session tuning.
type Hub struct {
	WatchdogInterval int `toml:"watchdog_interval"`
	MaxPendingBytes  int `toml:"max_pending_bytes"`
	DispatchTimeout  int `toml:"dispatch_timeout"`
	WriteTimeout     int `toml:"write_timeout"`
}

// Relay contains settings for the cast-control relay bridge.
type Relay struct {
	Bind    string `toml:"bind"`
	AppID   string `toml:"app_id"`
	Timeout int    `toml:"timeout"`
}

// Metrics toggles the Prometheus endpoint served next to the relay.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Supervisor contains the watchdog restart policy.
type Supervisor struct {
	RestartPolicy  string `toml:"restart_policy"`
	BackoffInitial int    `toml:"backoff_initial"`
	BackoffMax     int    `toml:"backoff_max"`
	StopTimeout    int    `toml:"stop_timeout"`
}

// Worker is one roster entry launched and watched by the supervisor.
type Worker struct {
	Name     string   `toml:"name"`
	Command  []string `toml:"command"`
	Disabled bool     `toml:"disabled"`
}

// Converter contains settings for the transcode worker process.
type Converter struct {
	PollInterval     int      `toml:"poll_interval"`
	ProgressInterval int      `toml:"progress_interval"`
	OutputDir        string   `toml:"output_dir"`
	Encoder          []string `toml:"encoder"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediahub.
//
// Configuration sections by subsystem:
//   - Paths: hub socket and log directory
//   - Hub: watchdog cadence, buffer caps, timeouts
//   - Relay: cast-control relay bridge
//   - Metrics: Prometheus endpoint
//   - Supervisor: restart policy for the worker roster
//   - Workers: the roster itself
//   - Converter: transcode worker settings
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Hub        Hub        `toml:"hub"`
	Relay      Relay      `toml:"relay"`
	Metrics    Metrics    `toml:"metrics"`
	Supervisor Supervisor `toml:"supervisor"`
	Workers    []Worker   `toml:"workers"`
	Converter  Converter  `toml:"converter"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		defaults := cfg.Workers
		cfg.Workers = nil
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		if cfg.Workers == nil {
			cfg.Workers = defaults
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("mediahub.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, filepath.Dir(c.Paths.SocketPath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the single-instance lock file that sits next to the socket.
func (c *Config) LockPath() string {
	return c.Paths.SocketPath + ".lock"
}

// PIDPath is where the running hub records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "mediahub.pid")
}

// LogPath is the hub daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "mediahub.log")
}

// WatchdogInterval is the supervisor tick cadence.
func (c *Config) WatchdogInterval() time.Duration {
	return seconds(c.Hub.WatchdogInterval)
}

// DispatchTimeout bounds how long a session waits for the hub loop to answer.
func (c *Config) DispatchTimeout() time.Duration {
	return seconds(c.Hub.DispatchTimeout)
}

// WriteTimeout bounds each outbound flush attempt on a session.
func (c *Config) WriteTimeout() time.Duration {
	return seconds(c.Hub.WriteTimeout)
}

// RelayTimeout bounds a single relay round trip.
func (c *Config) RelayTimeout() time.Duration {
	return seconds(c.Relay.Timeout)
}

// BackoffInitial is the first restart delay after a worker exits.
func (c *Config) BackoffInitial() time.Duration {
	return seconds(c.Supervisor.BackoffInitial)
}

// BackoffMax caps the restart delay.
func (c *Config) BackoffMax() time.Duration {
	return seconds(c.Supervisor.BackoffMax)
}

// StopTimeout is how long a terminated worker gets before it is killed.
func (c *Config) StopTimeout() time.Duration {
	return seconds(c.Supervisor.StopTimeout)
}

// ConverterPollInterval is the idle delay between job requests.
func (c *Config) ConverterPollInterval() time.Duration {
	return seconds(c.Converter.PollInterval)
}

// ConverterProgressInterval is the cadence of progress reports.
func (c *Config) ConverterProgressInterval() time.Duration {
	return seconds(c.Converter.ProgressInterval)
}

// EnabledWorkers returns roster entries that are not disabled.
func (c *Config) EnabledWorkers() []Worker {
	out := make([]Worker, 0, len(c.Workers))
	for _, w := range c.Workers {
		if w.Disabled {
			continue
		}
		out = append(out, w)
	}
	return out
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
