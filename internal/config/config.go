package config

import "time"

// Config represents the complete vigil configuration
type Config struct {
	Version   string            `yaml:"version"`
	Settings  Settings          `yaml:"settings"`
	Monitor   MonitorSettings   `yaml:"monitor"`
	Inference InferenceSettings `yaml:"inference"`
	Resolver  ResolverSettings  `yaml:"resolver"`
	Store     StoreSettings     `yaml:"store"`
}

// Settings contains global configuration settings
type Settings struct {
	LogLevel string         `yaml:"log_level"`
	LogFile  string         `yaml:"log_file,omitempty"`
	Daemon   DaemonSettings `yaml:"daemon"`
}

// DaemonSettings configures the HTTP daemon
type DaemonSettings struct {
	Port      int  `yaml:"port"`
	AutoStart bool `yaml:"auto_start"`
}

// MonitorSettings configures the frame sampling loop.
// Durations are strings parsed with time.ParseDuration; zero values fall
// back to the defaults below.
type MonitorSettings struct {
	FrameRoot       string `yaml:"frame_root,omitempty"`
	FrameInterval   string `yaml:"frame_interval,omitempty"`
	FrameTimeout    string `yaml:"frame_timeout,omitempty"`
	PollInterval    string `yaml:"poll_interval,omitempty"`
	ThrottleBackoff string `yaml:"throttle_backoff,omitempty"`
	StopGrace       string `yaml:"stop_grace,omitempty"`
	FFmpegPath      string `yaml:"ffmpeg_path,omitempty"`
}

// Monitor timing defaults. The frame interval must match the cadence the
// capture process is told to write at, so both come from the same place.
const (
	DefaultFrameInterval   = 6 * time.Second
	DefaultFrameTimeout    = 60 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultThrottleBackoff = 2 * time.Second
	DefaultStopGrace       = 5 * time.Second
)

// Interval returns the frame sampling cadence
func (m MonitorSettings) Interval() time.Duration {
	return parseDuration(m.FrameInterval, DefaultFrameInterval)
}

// Timeout returns the frame wait deadline
func (m MonitorSettings) Timeout() time.Duration {
	return parseDuration(m.FrameTimeout, DefaultFrameTimeout)
}

// Poll returns the sleep between frame existence checks
func (m MonitorSettings) Poll() time.Duration {
	return parseDuration(m.PollInterval, DefaultPollInterval)
}

// Backoff returns the sleep before retrying a throttled inference call
func (m MonitorSettings) Backoff() time.Duration {
	return parseDuration(m.ThrottleBackoff, DefaultThrottleBackoff)
}

// Grace returns how long Stop waits before force-killing the capture process
func (m MonitorSettings) Grace() time.Duration {
	return parseDuration(m.StopGrace, DefaultStopGrace)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// InferenceSettings configures the vision model provider
type InferenceSettings struct {
	Provider  string `yaml:"provider,omitempty"`
	Model     string `yaml:"model,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

// ResolverSettings configures stream URL extraction
type ResolverSettings struct {
	Binary string `yaml:"binary,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// StoreSettings configures session/log persistence
type StoreSettings struct {
	Path string `yaml:"path,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Settings: Settings{
			LogLevel: "info",
			Daemon: DaemonSettings{
				Port: 8764,
			},
		},
		Inference: InferenceSettings{
			Provider:  "openai",
			MaxTokens: 50,
		},
	}
}
