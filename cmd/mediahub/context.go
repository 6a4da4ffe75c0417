package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediahub/internal/config"
	"mediahub/internal/ipc"
	"mediahub/internal/wire"
)

type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
	}
}

// ensureConfig loads the configuration once. A --socket flag overrides the
// configured socket path so every command and the launched hub agree on it.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if socket := c.socketOverride(); socket != "" {
			expanded, err := config.ExpandPath(socket)
			if err != nil {
				c.configErr = fmt.Errorf("resolve socket path: %w", err)
				return
			}
			cfg.Paths.SocketPath = expanded
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) socketOverride() string {
	if c.socketFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.socketFlag)
}

func (c *commandContext) socketPath() string {
	if cfg := c.configValue(); cfg != nil {
		return cfg.Paths.SocketPath
	}
	if socket := c.socketOverride(); socket != "" {
		return socket
	}
	return config.Default().Paths.SocketPath
}

func (c *commandContext) clientTimeout() time.Duration {
	if cfg := c.configValue(); cfg != nil {
		return max(ipc.DefaultTimeout, cfg.DispatchTimeout()+time.Second)
	}
	return ipc.DefaultTimeout
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient(wire.SourceCLI)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient(source string) (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket, source, c.clientTimeout())
	if err != nil {
		return nil, wrapDialError(err, socket)
	}
	return client, nil
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT) || os.IsNotExist(err):
		return fmt.Errorf("connect to hub: socket %s not found; start the hub with `mediahub start`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to hub: socket %s refused the connection; verify the hub is running", socket)
	default:
		return fmt.Errorf("connect to hub: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
