package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cgale/vigil/internal/logger"
	"github.com/cgale/vigil/internal/store"
)

var (
	logsSince      int64
	logsAlertsOnly bool
	logsFollow     bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect monitoring sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	RunE:  runSessionsList,
}

var sessionsLogsCmd = &cobra.Command{
	Use:   "logs <session-id>",
	Short: "Print a session's log",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsLogs,
}

func init() {
	sessionsLogsCmd.Flags().Int64Var(&logsSince, "since", 0, "Only entries with sequence id >= this value")
	sessionsLogsCmd.Flags().BoolVar(&logsAlertsOnly, "alerts", false, "Only alert entries")
	sessionsLogsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Keep printing new entries until the session ends")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsLogsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openStore() (store.SessionStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger.InitQuiet()

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return st, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	sessions, err := st.ListSessions()
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  %-10s frame %-4d %s\n",
			s.ID, colorStatus(s), s.LastFrameNumber, s.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  goal: %s\n", s.Goal)
		if s.ErrorMessage != "" {
			fmt.Printf("  error: %s\n", s.ErrorMessage)
		}
	}

	return nil
}

func runSessionsLogs(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	sessionID := args[0]
	if _, err := st.GetSession(sessionID); err != nil {
		return err
	}

	if logsAlertsOnly {
		entries, err := st.Alerts(sessionID)
		if err != nil {
			return err
		}
		printEntries(entries)
		return nil
	}

	entries, err := st.LogsSince(sessionID, logsSince)
	if err != nil {
		return err
	}
	printEntries(entries)

	if !logsFollow {
		return nil
	}

	cursor := logsSince
	if n := len(entries); n > 0 {
		cursor = entries[n-1].ID + 1
	}

	for {
		session, err := st.GetSession(sessionID)
		if err != nil {
			return err
		}

		entries, err = st.LogsSince(sessionID, cursor)
		if err != nil {
			return err
		}
		printEntries(entries)
		if n := len(entries); n > 0 {
			cursor = entries[n-1].ID + 1
		}

		time.Sleep(500 * time.Millisecond)

		// The final log entry lands shortly after the terminal status, so
		// drain once more before exiting.
		if session.Status.Terminal() {
			entries, err = st.LogsSince(sessionID, cursor)
			if err != nil {
				return err
			}
			printEntries(entries)
			return nil
		}
	}
}

func printEntries(entries []*store.LogEntry) {
	for _, e := range entries {
		line := fmt.Sprintf("%6d  %s", e.ID, e.CreatedAt.Format(time.RFC3339))
		if e.FrameNumber != nil {
			line += fmt.Sprintf("  [frame %d]", *e.FrameNumber)
		}
		line += "  " + e.Message

		if e.IsAlert {
			color.Red("%s", line)
		} else {
			fmt.Println(line)
		}
	}
}

func colorStatus(s *store.Session) string {
	switch s.Status {
	case store.StatusRunning:
		return color.CyanString(string(s.Status))
	case store.StatusCompleted:
		if s.EventDetected {
			return color.GreenString("detected")
		}
		return color.GreenString(string(s.Status))
	case store.StatusError:
		return color.RedString(string(s.Status))
	default:
		return color.YellowString(string(s.Status))
	}
}
