package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-copilot/internal/config"
	"github.com/jonathan/career-copilot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts the REST API: session creation and streaming, draft retrieval,
persona switching, copilot queries, and evidence ingestion. Requires a
PostgreSQL database (DATABASE_URL) so sessions and drafts survive restarts.`,
	RunE: runServe,
}

var (
	serveConfigPath  string
	serveEvidence    string
	serveAPIKey      string
	serveDatabaseURL string
	serveListenAddr  string
	serveUseBrowser  bool
	serveVerbose     bool
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.json file")
	serveCmd.Flags().StringVarP(&serveEvidence, "evidence", "e", "", "Path to evidence archive JSON file to ingest at startup")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	serveCmd.Flags().StringVar(&serveDatabaseURL, "database-url", "", "PostgreSQL URL (optional, defaults to DATABASE_URL env var)")
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "Listen address (default :8080)")
	serveCmd.Flags().BoolVar(&serveUseBrowser, "use-browser", false, "Render JavaScript-heavy job pages with a headless browser")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Verbose logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx, serveConfigPath, config.Config{
		Evidence:    serveEvidence,
		APIKey:      serveAPIKey,
		DatabaseURL: serveDatabaseURL,
		ListenAddr:  serveListenAddr,
		UseBrowser:  serveUseBrowser,
		Verbose:     serveVerbose,
	}, true)
	if err != nil {
		return err
	}
	defer a.close()

	if a.database == nil {
		return fmt.Errorf("the server requires a database: set DATABASE_URL or --database-url")
	}

	if err := a.warmEvidence(ctx); err != nil {
		return err
	}
	if a.cfg.Evidence != "" {
		if _, err := a.ingestEvidenceFile(ctx, a.cfg.Evidence); err != nil {
			return err
		}
	}

	srv, err := server.New(server.Dependencies{
		Sessions:    a.sessions,
		Evidence:    a.store,
		Ingester:    a.ingester,
		Copilot:     a.copilot,
		DB:          a.database,
		NewPipeline: a.newOrchestrator,
		UseBrowser:  a.cfg.UseBrowser,
		JWTSecret:   a.cfg.JWTSecret,
		ListenAddr:  a.cfg.ListenAddr,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	return srv.Start()
}
