package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRelay()
	c.normalizeSupervisor()
	c.normalizeWorkers()
	if err := c.normalizeConverter(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("MEDIAHUB_SOCKET"); ok && strings.TrimSpace(value) != "" {
		c.Paths.SocketPath = value
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	var err error
	if c.Paths.SocketPath, err = expandPath(strings.TrimSpace(c.Paths.SocketPath)); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRelay() {
	c.Relay.Bind = strings.TrimSpace(c.Relay.Bind)
	c.Relay.AppID = strings.TrimSpace(c.Relay.AppID)
	if c.Relay.AppID == "" {
		c.Relay.AppID = defaultRelayAppID
	}
}

func (c *Config) normalizeSupervisor() {
	c.Supervisor.RestartPolicy = strings.ToLower(strings.TrimSpace(c.Supervisor.RestartPolicy))
	if c.Supervisor.RestartPolicy == "" {
		c.Supervisor.RestartPolicy = defaultRestartPolicy
	}
}

func (c *Config) normalizeWorkers() {
	for i := range c.Workers {
		c.Workers[i].Name = strings.TrimSpace(c.Workers[i].Name)
		args := c.Workers[i].Command[:0]
		for _, arg := range c.Workers[i].Command {
			if strings.TrimSpace(arg) == "" {
				continue
			}
			args = append(args, arg)
		}
		c.Workers[i].Command = args
	}
}

func (c *Config) normalizeConverter() error {
	if strings.TrimSpace(c.Converter.OutputDir) == "" {
		c.Converter.OutputDir = defaultOutputDir
	}
	var err error
	if c.Converter.OutputDir, err = expandPath(strings.TrimSpace(c.Converter.OutputDir)); err != nil {
		return fmt.Errorf("converter.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("MEDIAHUB_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
