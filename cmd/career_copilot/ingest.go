package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-copilot/internal/config"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest an evidence archive file",
	Long: `Reads an evidence archive JSON file (an array of {id, text, tags}
records), embeds new and changed entries, and stores them for retrieval.
Entries whose text and tags are unchanged keep their existing embeddings.`,
	RunE: runIngest,
}

var (
	ingestConfigPath  string
	ingestEvidence    string
	ingestAPIKey      string
	ingestDatabaseURL string
	ingestVerbose     bool
)

func init() {
	ingestCmd.Flags().StringVar(&ingestConfigPath, "config", "", "Path to config.json file")
	ingestCmd.Flags().StringVarP(&ingestEvidence, "evidence", "e", "", "Path to evidence archive JSON file (required)")
	ingestCmd.Flags().StringVar(&ingestAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	ingestCmd.Flags().StringVar(&ingestDatabaseURL, "database-url", "", "PostgreSQL URL for persistence (optional, defaults to DATABASE_URL env var)")
	ingestCmd.Flags().BoolVarP(&ingestVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx, ingestConfigPath, config.Config{
		Evidence:    ingestEvidence,
		APIKey:      ingestAPIKey,
		DatabaseURL: ingestDatabaseURL,
		Verbose:     ingestVerbose,
	}, false)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Evidence == "" {
		return fmt.Errorf("an evidence file is required: pass --evidence")
	}

	if err := a.warmEvidence(ctx); err != nil {
		return err
	}

	stats, err := a.ingestEvidenceFile(ctx, a.cfg.Evidence)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d items: %d embedded, %d unchanged\n",
		stats.Total, stats.Embedded, stats.Unchanged)
	return nil
}
