package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateHub(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateConverter(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		return errors.New("paths.socket_path must be set")
	}
	return nil
}

func (c *Config) validateHub() error {
	if err := ensurePositiveMap(map[string]int{
		"hub.watchdog_interval": c.Hub.WatchdogInterval,
		"hub.max_pending_bytes": c.Hub.MaxPendingBytes,
		"hub.dispatch_timeout":  c.Hub.DispatchTimeout,
		"hub.write_timeout":     c.Hub.WriteTimeout,
		"relay.timeout":         c.Relay.Timeout,
	}); err != nil {
		return err
	}
	if c.Hub.DispatchTimeout <= c.Relay.Timeout {
		return errors.New("hub.dispatch_timeout must be greater than relay.timeout")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	switch c.Supervisor.RestartPolicy {
	case RestartAlways, RestartOnFailure, RestartNever:
	default:
		return fmt.Errorf("supervisor.restart_policy: unsupported value %q (want always, on-failure, never)", c.Supervisor.RestartPolicy)
	}
	if err := ensurePositiveMap(map[string]int{
		"supervisor.backoff_initial": c.Supervisor.BackoffInitial,
		"supervisor.backoff_max":     c.Supervisor.BackoffMax,
		"supervisor.stop_timeout":    c.Supervisor.StopTimeout,
	}); err != nil {
		return err
	}
	if c.Supervisor.BackoffMax < c.Supervisor.BackoffInitial {
		return errors.New("supervisor.backoff_max must be at least supervisor.backoff_initial")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	seen := make(map[string]struct{}, len(c.Workers))
	for i, w := range c.Workers {
		if w.Name == "" {
			return fmt.Errorf("workers[%d].name must be set", i)
		}
		if _, dup := seen[w.Name]; dup {
			return fmt.Errorf("workers[%d].name %q is duplicated", i, w.Name)
		}
		seen[w.Name] = struct{}{}
		if len(w.Command) == 0 {
			return fmt.Errorf("workers[%d].command must not be empty", i)
		}
	}
	return nil
}

func (c *Config) validateConverter() error {
	if err := ensurePositiveMap(map[string]int{
		"converter.poll_interval":     c.Converter.PollInterval,
		"converter.progress_interval": c.Converter.ProgressInterval,
	}); err != nil {
		return err
	}
	if len(c.Converter.Encoder) == 0 {
		return errors.New("converter.encoder must not be empty")
	}
	hasInput := false
	for _, arg := range c.Converter.Encoder {
		if strings.Contains(arg, "{input}") {
			hasInput = true
			break
		}
	}
	if !hasInput {
		return errors.New("converter.encoder must reference {input}")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
