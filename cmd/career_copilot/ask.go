package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/career-copilot/internal/config"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the interview copilot a question",
	Long: `Retrieves the most relevant evidence for an interview question and,
when the fast model responds in time, a few grounded talking points. The
session is read-only; asking never changes its state.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askConfigPath  string
	askSessionID   string
	askEvidence    string
	askAPIKey      string
	askDatabaseURL string
)

func init() {
	askCmd.Flags().StringVar(&askConfigPath, "config", "", "Path to config.json file")
	askCmd.Flags().StringVarP(&askSessionID, "session", "s", "", "Session ID (required)")
	askCmd.Flags().StringVarP(&askEvidence, "evidence", "e", "", "Path to evidence archive JSON file")
	askCmd.Flags().StringVar(&askAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	askCmd.Flags().StringVar(&askDatabaseURL, "database-url", "", "PostgreSQL URL for persistence (optional, defaults to DATABASE_URL env var)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	a, err := buildApp(ctx, askConfigPath, config.Config{
		Evidence:    askEvidence,
		APIKey:      askAPIKey,
		DatabaseURL: askDatabaseURL,
	}, false)
	if err != nil {
		return err
	}
	defer a.close()

	if askSessionID == "" {
		return fmt.Errorf("a session is required: pass --session")
	}
	sessionID, err := uuid.Parse(askSessionID)
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	if err := a.warmEvidence(ctx); err != nil {
		return err
	}
	if a.cfg.Evidence != "" {
		if _, err := a.ingestEvidenceFile(ctx, a.cfg.Evidence); err != nil {
			return err
		}
	}

	// The copilot needs the session in memory; restore it from the
	// database if this process did not create it.
	if _, err := a.sessions.Get(sessionID); err != nil && a.database != nil {
		stored, dbErr := a.database.GetSession(ctx, sessionID)
		if dbErr != nil {
			return dbErr
		}
		if stored != nil {
			a.sessions.Restore(*stored)
		}
	}

	answer, err := a.copilot.Ask(ctx, sessionID, question)
	if err != nil {
		return err
	}

	fmt.Printf("Question: %s\n\n", answer.Question)
	if len(answer.Evidence) == 0 {
		fmt.Println("No relevant evidence found.")
		return nil
	}

	fmt.Println("Relevant evidence:")
	for _, item := range answer.Evidence {
		fmt.Printf("  [%.2f] %s\n", item.Score, item.Item.Text)
	}
	if len(answer.TalkingPoints) > 0 {
		fmt.Println("\nTalking points:")
		for _, point := range answer.TalkingPoints {
			fmt.Printf("  • %s\n", point)
		}
	} else if answer.Degraded {
		fmt.Println("\nTalking points unavailable (model too slow); evidence only.")
	}
	return nil
}
