package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cgale/vigil/internal/inference"
	"github.com/cgale/vigil/internal/monitor"
	"github.com/cgale/vigil/internal/store"
)

var watchGoal string

var watchCmd = &cobra.Command{
	Use:   "watch <url>",
	Short: "Monitor a live feed in the foreground",
	Long: `Create a monitoring session for the given feed URL and run it in the
foreground until the event is detected, the frame source is exhausted, or a
failure occurs.

Example:
  vigil watch https://example.com/live --goal "a truck stops at the gate"`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchGoal, "goal", "g", "", "Description of the event to detect (required)")
	_ = watchCmd.MarkFlagRequired("goal")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() { _ = st.Close() }()

	client, err := inference.NewClient(cfg.Inference)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	resolver := monitor.NewYTDLPResolver(cfg.Resolver)
	runner := monitor.NewRunner(st, resolver, client, monitor.OptionsFromConfig(cfg.Monitor))

	session, err := st.CreateSession(args[0], watchGoal)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	fmt.Printf("Session %s created, monitoring...\n", session.ID)

	runner.Run(session.ID)

	session, err = st.GetSession(session.ID)
	if err != nil {
		return fmt.Errorf("failed to reload session: %w", err)
	}

	switch {
	case session.Status == store.StatusError:
		color.Red("Monitoring failed: %s", session.ErrorMessage)
		return fmt.Errorf("session ended in error")
	case session.EventDetected:
		color.Green("Event detected at frame %d.", session.LastFrameNumber)
	default:
		color.Yellow("Monitoring ended without detecting the event (%d frames).", session.LastFrameNumber)
	}

	return nil
}
