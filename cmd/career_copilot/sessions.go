package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-copilot/internal/config"
	"github.com/jonathan/career-copilot/internal/types"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List tailoring sessions",
	RunE:  runSessions,
}

var (
	sessionsConfigPath  string
	sessionsDatabaseURL string
	sessionsLimit       int
)

func init() {
	sessionsCmd.Flags().StringVar(&sessionsConfigPath, "config", "", "Path to config.json file")
	sessionsCmd.Flags().StringVar(&sessionsDatabaseURL, "database-url", "", "PostgreSQL URL (optional, defaults to DATABASE_URL env var)")
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum number of sessions to show")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx, sessionsConfigPath, config.Config{
		DatabaseURL: sessionsDatabaseURL,
	}, false)
	if err != nil {
		return err
	}
	defer a.close()

	var sessions []types.Session
	if a.database != nil {
		sessions, err = a.database.ListSessions(ctx, sessionsLimit)
		if err != nil {
			return err
		}
	} else {
		sessions = a.sessions.List()
		if sessionsLimit > 0 && len(sessions) > sessionsLimit {
			sessions = sessions[:sessionsLimit]
		}
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-21s  %s\n", "ID", "STATE", "PERSONA", "CREATED")
	for _, s := range sessions {
		fmt.Printf("%-36s  %-10s  %-21s  %s\n",
			s.ID, s.State, s.Persona, s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
