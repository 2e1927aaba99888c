package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cgale/vigil/internal/daemon"
	"github.com/cgale/vigil/internal/inference"
	"github.com/cgale/vigil/internal/logger"
	"github.com/cgale/vigil/internal/monitor"
	"github.com/cgale/vigil/internal/store"
)

var (
	backgroundFlag      bool
	backgroundChildFlag bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the vigil daemon",
	Long: `Manage the vigil daemon.

The daemon exposes monitoring over a local HTTP API: create sessions, poll
their status incrementally, and stream log entries over SSE.

Commands:
  start  - Start the daemon (foreground or background)
  stop   - Stop the running daemon
  status - Check if the daemon is running`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long: `Start the vigil daemon.

By default, runs in the foreground. Use --background to run as a background process.

Example:
  vigil daemon start              # Run in foreground
  vigil daemon start --background # Run in background`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	RunE:  runDaemonStatus,
}

func init() {
	daemonStartCmd.Flags().BoolVarP(&backgroundFlag, "background", "b", false, "Run daemon in background")
	daemonStartCmd.Flags().BoolVar(&backgroundChildFlag, "background-child", false, "Internal flag for background process")
	_ = daemonStartCmd.Flags().MarkHidden("background-child")

	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)

	lifecycle := daemon.NewLifecycle(cfg.Settings.Daemon)

	// If --background flag is set, start in background and exit
	if backgroundFlag && !backgroundChildFlag {
		if lifecycle.IsRunning() {
			fmt.Println("Daemon is already running")
			return nil
		}

		if err := lifecycle.StartInBackground(); err != nil {
			return fmt.Errorf("failed to start daemon in background: %w", err)
		}

		fmt.Printf("Daemon started on http://127.0.0.1:%d\n", lifecycle.Port())
		return nil
	}

	if !backgroundChildFlag && lifecycle.IsRunning() {
		return fmt.Errorf("daemon is already running (PID file: %s)", lifecycle.PIDFile())
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	client, err := inference.NewClient(cfg.Inference)
	if err != nil {
		return err
	}

	resolver := monitor.NewYTDLPResolver(cfg.Resolver)
	runner := monitor.NewRunner(st, resolver, client, monitor.OptionsFromConfig(cfg.Monitor))
	registry := monitor.NewRegistry(runner.Run)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := daemon.NewServer(cfg, st, registry, Version)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if !backgroundChildFlag {
		fmt.Printf("Daemon running at http://127.0.0.1:%d\n", server.Port())
		fmt.Println("Press Ctrl+C to stop")
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}

	_ = client.Close()
	_ = st.Close()

	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lifecycle := daemon.NewLifecycle(cfg.Settings.Daemon)

	if !lifecycle.IsRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	pid, _ := lifecycle.GetPID()
	if err := lifecycle.Stop(); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	fmt.Printf("Daemon stopped (was PID %d)\n", pid)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lifecycle := daemon.NewLifecycle(cfg.Settings.Daemon)

	if lifecycle.IsRunning() {
		pid, _ := lifecycle.GetPID()
		fmt.Printf("Daemon is running (PID %d)\n", pid)
		fmt.Printf("API: http://127.0.0.1:%d\n", lifecycle.Port())
	} else {
		fmt.Println("Daemon is not running")
	}

	return nil
}
