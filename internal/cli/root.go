package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cgale/vigil/internal/config"
	"github.com/cgale/vigil/internal/logger"
)

// Version information set via ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	verbose    bool
	configFile string
	projectDir string
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Watch live video feeds for user-described events",
	Long: `Vigil watches a live video feed, samples frames at a fixed cadence, and
asks a vision model whether a user-described event has occurred, raising an
alert the moment it has.

A session's lifecycle and its full log are persisted, so progress can be
polled while monitoring runs and inspected afterwards.

Configure vigil in:
  - ~/.vigil/config.yaml (global)
  - .vigil/config.yaml (project-specific)`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vigil %s\n", Version)
		fmt.Printf("  commit: %s\n", Commit)
		fmt.Printf("  built:  %s\n", Date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Override config file path")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "Override project directory")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the merged configuration honoring the --config flag
func loadConfig() (*config.Config, error) {
	loader, err := config.NewLoader(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}

	if configFile != "" {
		return loader.LoadFromFile(configFile)
	}
	return loader.Load()
}

// initLogging initializes the global logger from config and flags
func initLogging(cfg *config.Config) {
	level := cfg.Settings.LogLevel
	if verbose {
		level = "debug"
	}
	if level == "" {
		level = "info"
	}
	_ = logger.Init(level, cfg.Settings.LogFile)
}
