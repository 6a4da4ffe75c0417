package config

const (
	defaultConfigPath       = "~/.config/mediahub/config.toml"
	defaultSocketPath       = "/tmp/mediahub.sock"
	defaultLogDir           = "~/.local/share/mediahub/logs"
	defaultWatchdogInterval = 10
	defaultMaxPendingBytes  = 4 << 20
	defaultDispatchTimeout  = 15
	defaultWriteTimeout     = 5
	defaultRelayBind        = "127.0.0.1:7490"
	defaultRelayAppID       = "e7689337-7a7a-4640-a05a-5dd2bd7699f9_1"
	defaultRelayTimeout     = 5
	defaultRestartPolicy    = RestartOnFailure
	defaultBackoffInitial   = 1
	defaultBackoffMax       = 60
	defaultStopTimeout      = 5
	defaultPollInterval     = 10
	defaultProgressInterval = 10
	defaultOutputDir        = "~/.local/share/mediahub/media"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Restart policies understood by the supervisor watchdog.
const (
	RestartAlways    = "always"
	RestartOnFailure = "on-failure"
	RestartNever     = "never"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SocketPath: defaultSocketPath,
			LogDir:     defaultLogDir,
		},
		Hub: Hub{
			WatchdogInterval: defaultWatchdogInterval,
			MaxPendingBytes:  defaultMaxPendingBytes,
			DispatchTimeout:  defaultDispatchTimeout,
			WriteTimeout:     defaultWriteTimeout,
		},
		Relay: Relay{
			Bind:    defaultRelayBind,
			AppID:   defaultRelayAppID,
			Timeout: defaultRelayTimeout,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Supervisor: Supervisor{
			RestartPolicy:  defaultRestartPolicy,
			BackoffInitial: defaultBackoffInitial,
			BackoffMax:     defaultBackoffMax,
			StopTimeout:    defaultStopTimeout,
		},
		Workers: []Worker{
			{Name: "converter", Command: []string{"mediahub", "converter"}},
		},
		Converter: Converter{
			PollInterval:     defaultPollInterval,
			ProgressInterval: defaultProgressInterval,
			OutputDir:        defaultOutputDir,
			Encoder: []string{
				"ffmpeg", "-nostdin", "-y", "-i", "{input}",
				"-c:v", "libx264", "-crf", "23",
				"-c:a", "aac", "-b:a", "192k",
				"{output}",
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
