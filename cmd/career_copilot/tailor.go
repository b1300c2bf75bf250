package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/career-copilot/internal/config"
	"github.com/jonathan/career-copilot/internal/jobfeed"
	"github.com/jonathan/career-copilot/internal/observability"
	"github.com/jonathan/career-copilot/internal/pipeline"
	"github.com/jonathan/career-copilot/internal/types"
)

var tailorCmd = &cobra.Command{
	Use:   "tailor",
	Short: "Tailor a draft document to a job posting",
	Long: `Runs the full tailoring pipeline: extract requirements from the posting,
match them against the evidence archive, synthesize a draft, and refine it
through the critique loop.

Configuration can be loaded from a JSON file using --config. Command-line
arguments override config file values.`,
	RunE: runTailor,
}

var (
	tailorConfigPath  string
	tailorJob         string
	tailorJobURL      string
	tailorEvidence    string
	tailorAPIKey      string
	tailorDatabaseURL string
	tailorOut         string
	tailorResume      string
	tailorUseBrowser  bool
	tailorVerbose     bool
)

func init() {
	tailorCmd.Flags().StringVar(&tailorConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	tailorCmd.Flags().StringVarP(&tailorJob, "job", "j", "", "Path to job posting text file (mutually exclusive with --job-url)")
	tailorCmd.Flags().StringVar(&tailorJobURL, "job-url", "", "URL to fetch job posting from (mutually exclusive with --job)")
	tailorCmd.Flags().StringVarP(&tailorEvidence, "evidence", "e", "", "Path to evidence archive JSON file")
	tailorCmd.Flags().StringVar(&tailorAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	tailorCmd.Flags().StringVar(&tailorDatabaseURL, "database-url", "", "PostgreSQL URL for persistence (optional, defaults to DATABASE_URL env var)")
	tailorCmd.Flags().StringVarP(&tailorOut, "out", "o", "", "Write the final draft JSON to this file instead of stdout")
	tailorCmd.Flags().StringVar(&tailorResume, "resume", "", "Resume an interrupted session by ID from its last persisted draft (requires a database)")
	tailorCmd.Flags().BoolVar(&tailorUseBrowser, "use-browser", false, "Use headless browser for SPA job boards (requires Chrome)")
	tailorCmd.Flags().BoolVarP(&tailorVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.AddCommand(tailorCmd)
}

func runTailor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx, tailorConfigPath, config.Config{
		Job:         tailorJob,
		JobURL:      tailorJobURL,
		Evidence:    tailorEvidence,
		APIKey:      tailorAPIKey,
		DatabaseURL: tailorDatabaseURL,
		UseBrowser:  tailorUseBrowser,
		Verbose:     tailorVerbose,
	}, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.warmEvidence(ctx); err != nil {
		return err
	}
	if a.cfg.Evidence != "" {
		stats, err := a.ingestEvidenceFile(ctx, a.cfg.Evidence)
		if err != nil {
			return err
		}
		fmt.Printf("Evidence archive: %d items (%d embedded, %d unchanged)\n",
			stats.Total, stats.Embedded, stats.Unchanged)
	}
	if a.store.Len() == 0 {
		return fmt.Errorf("evidence archive is empty: provide --evidence or ingest first")
	}

	posting, err := loadPosting(ctx, a.cfg)
	if err != nil {
		return err
	}

	runner := a.newOrchestrator(nil)
	var result *pipeline.Result
	if tailorResume != "" {
		id, err := restoreSession(ctx, a, tailorResume)
		if err != nil {
			return err
		}
		result, err = runner.Resume(ctx, id, posting.RawText)
		if err != nil {
			return err
		}
	} else {
		sess, err := a.sessions.Create(ctx, posting.ID, "")
		if err != nil {
			return err
		}
		fmt.Printf("Session %s created\n", sess.ID)
		result, err = runner.Run(ctx, sess.ID, posting.RawText)
		if err != nil {
			return err
		}
	}

	printer := observability.NewPrinter(os.Stdout)

	if a.cfg.Verbose {
		printer.PrintRequirements(result.Requirements)
		printer.PrintMatchReport(result.Requirements, result.Report)
		printer.PrintCritique(result.Critique)
	}
	printer.PrintDraft(result.Draft)
	printer.PrintQualityReport(result.Quality)

	return writeDraft(result.Draft, tailorOut)
}

// restoreSession loads a persisted session into the in-memory store so a
// resumed run can drive its state machine.
func restoreSession(ctx context.Context, a *app, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --resume session id: %w", err)
	}
	if a.database == nil {
		return uuid.Nil, fmt.Errorf("--resume requires a database: set DATABASE_URL or --database-url")
	}
	stored, err := a.database.GetSession(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if stored == nil {
		return uuid.Nil, fmt.Errorf("session %s not found", id)
	}
	if stored.State.Terminal() {
		return uuid.Nil, fmt.Errorf("session %s already finished (state %s)", id, stored.State)
	}
	a.sessions.Restore(*stored)
	fmt.Printf("Session %s restored (state %s)\n", id, stored.State)
	return id, nil
}

// loadPosting reads the posting from the configured file or URL.
func loadPosting(ctx context.Context, cfg config.Config) (*types.JobPosting, error) {
	switch {
	case cfg.Job != "":
		return jobfeed.FromFile(cfg.Job)
	case cfg.JobURL != "":
		return jobfeed.FromURL(ctx, cfg.JobURL, jobfeed.FetchOptions{UseBrowser: cfg.UseBrowser})
	default:
		return nil, fmt.Errorf("a job posting is required: pass --job or --job-url")
	}
}

func writeDraft(draft *types.DraftDocument, outPath string) error {
	data, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	if outPath == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write draft: %w", err)
	}
	fmt.Printf("Draft written to %s\n", outPath)
	return nil
}
