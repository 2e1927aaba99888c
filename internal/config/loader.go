package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	globalConfigDir  = ".vigil"
	projectConfigDir = ".vigil"
	configFileName   = "config.yaml"
)

// Loader handles loading and merging configuration files
type Loader struct {
	globalPath  string
	projectPath string
}

// NewLoader creates a new configuration loader
func NewLoader(projectDir string) (*Loader, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	if projectDir == "" {
		projectDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &Loader{
		globalPath:  filepath.Join(homeDir, globalConfigDir, configFileName),
		projectPath: filepath.Join(projectDir, projectConfigDir, configFileName),
	}, nil
}

// Load loads and merges configuration from all sources
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	globalCfg, err := l.loadFile(l.globalPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}
	if globalCfg != nil {
		cfg = mergeConfigs(cfg, globalCfg)
	}

	projectCfg, err := l.loadFile(l.projectPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	if projectCfg != nil {
		cfg = mergeConfigs(cfg, projectCfg)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	cfg, err := l.loadFile(path)
	if err != nil {
		return nil, err
	}
	return mergeConfigs(DefaultConfig(), cfg), nil
}

func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// mergeConfigs merges two configurations, with override taking precedence
func mergeConfigs(base, override *Config) *Config {
	result := &Config{
		Version: coalesce(override.Version, base.Version),
		Settings: Settings{
			LogLevel: coalesce(override.Settings.LogLevel, base.Settings.LogLevel),
			LogFile:  coalesce(override.Settings.LogFile, base.Settings.LogFile),
			Daemon:   mergeDaemonSettings(base.Settings.Daemon, override.Settings.Daemon),
		},
		Monitor: MonitorSettings{
			FrameRoot:       coalesce(override.Monitor.FrameRoot, base.Monitor.FrameRoot),
			FrameInterval:   coalesce(override.Monitor.FrameInterval, base.Monitor.FrameInterval),
			FrameTimeout:    coalesce(override.Monitor.FrameTimeout, base.Monitor.FrameTimeout),
			PollInterval:    coalesce(override.Monitor.PollInterval, base.Monitor.PollInterval),
			ThrottleBackoff: coalesce(override.Monitor.ThrottleBackoff, base.Monitor.ThrottleBackoff),
			StopGrace:       coalesce(override.Monitor.StopGrace, base.Monitor.StopGrace),
			FFmpegPath:      coalesce(override.Monitor.FFmpegPath, base.Monitor.FFmpegPath),
		},
		Inference: InferenceSettings{
			Provider: coalesce(override.Inference.Provider, base.Inference.Provider),
			Model:    coalesce(override.Inference.Model, base.Inference.Model),
			APIKey:   coalesce(override.Inference.APIKey, base.Inference.APIKey),
			BaseURL:  coalesce(override.Inference.BaseURL, base.Inference.BaseURL),
		},
		Resolver: ResolverSettings{
			Binary: coalesce(override.Resolver.Binary, base.Resolver.Binary),
			Format: coalesce(override.Resolver.Format, base.Resolver.Format),
		},
		Store: StoreSettings{
			Path: coalesce(override.Store.Path, base.Store.Path),
		},
	}

	result.Inference.MaxTokens = base.Inference.MaxTokens
	if override.Inference.MaxTokens != 0 {
		result.Inference.MaxTokens = override.Inference.MaxTokens
	}

	return result
}

// mergeDaemonSettings merges daemon settings, with override taking precedence for set values
func mergeDaemonSettings(base, override DaemonSettings) DaemonSettings {
	result := base

	if override.Port != 0 {
		result.Port = override.Port
	}
	if override.AutoStart {
		result.AutoStart = true
	}

	return result
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// GlobalConfigPath returns the path to the global config file
func (l *Loader) GlobalConfigPath() string {
	return l.globalPath
}

// ProjectConfigPath returns the path to the project config file
func (l *Loader) ProjectConfigPath() string {
	return l.projectPath
}

// Exists checks if a config file exists at the given path
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
