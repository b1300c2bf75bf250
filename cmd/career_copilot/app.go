package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jonathan/career-copilot/internal/config"
	"github.com/jonathan/career-copilot/internal/copilot"
	"github.com/jonathan/career-copilot/internal/db"
	"github.com/jonathan/career-copilot/internal/drafting"
	"github.com/jonathan/career-copilot/internal/evidence"
	"github.com/jonathan/career-copilot/internal/extraction"
	"github.com/jonathan/career-copilot/internal/llm"
	"github.com/jonathan/career-copilot/internal/logger"
	"github.com/jonathan/career-copilot/internal/matching"
	"github.com/jonathan/career-copilot/internal/pipeline"
	"github.com/jonathan/career-copilot/internal/quality"
	"github.com/jonathan/career-copilot/internal/retrieval"
	"github.com/jonathan/career-copilot/internal/review"
	"github.com/jonathan/career-copilot/internal/session"
)

// app holds the wired components shared by the CLI subcommands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	client   llm.Client
	store    *evidence.Store
	ingester *evidence.Ingester
	engine   *retrieval.Engine
	sessions *session.Store
	copilot  *copilot.Service
	database *db.DB // nil when no database URL is configured
}

// buildApp resolves configuration and constructs the component graph.
func buildApp(ctx context.Context, configPath string, overrides config.Config, jsonLogs bool) (*app, error) {
	cfg := overrides
	if configPath != "" {
		fileCfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = cfg.MergeWithDefaults(*fileCfg)
	}
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required: pass --api-key or set GEMINI_API_KEY")
	}

	log, err := logger.New(jsonLogs, cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: log,
		client: client,
		store:  evidence.NewStore(),
	}
	a.ingester = evidence.NewIngester(a.store, client, log)
	a.engine = retrieval.NewEngine(a.store, client, 0)

	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, err
		}
		a.database = database
	}

	var persister session.Persister
	if a.database != nil {
		persister = a.database
	}
	a.sessions = session.NewStore(persister, 0, log)

	a.copilot = copilot.NewService(a.sessions, a.engine, client, cfg.TopK, 0, log)
	return a, nil
}

// newOrchestrator builds a pipeline orchestrator, optionally with a
// progress callback.
func (a *app) newOrchestrator(progress pipeline.ProgressFunc) *pipeline.Orchestrator {
	extractor := extraction.NewExtractor(a.client, a.logger)
	matcher := matching.NewMatcher(a.engine, a.cfg.MatchThreshold, a.cfg.TopK, a.cfg.MaxConcurrency, a.logger)
	synthesizer := drafting.NewSynthesizer(a.client, a.logger)
	critic := review.NewCritic(a.client, a.cfg.AcceptThreshold, a.logger)
	loop := quality.NewLoop(synthesizer, critic, a.cfg.MaxIterations, a.logger)

	var drafts pipeline.DraftSink
	if a.database != nil {
		drafts = a.database
	}

	orch := pipeline.New(extractor, matcher, synthesizer, loop, a.sessions, a.store, drafts, a.logger)
	if a.database != nil {
		orch.WithDraftSource(a.database)
	}
	if progress != nil {
		orch.WithProgress(progress)
	}
	return orch
}

// warmEvidence loads previously embedded evidence from the database so the
// archive survives restarts without re-embedding.
func (a *app) warmEvidence(ctx context.Context) error {
	if a.database == nil {
		return nil
	}
	items, err := a.database.LoadEvidence(ctx)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		a.store.Replace(items)
		a.logger.Info("evidence warmed from database", zap.Int("items", len(items)))
	}
	return nil
}

// ingestEvidenceFile reads an evidence archive JSON file (an array of
// {id, text, tags} records), embeds new and changed entries, and mirrors
// the result to the database when one is configured.
func (a *app) ingestEvidenceFile(ctx context.Context, path string) (evidence.IngestStats, error) {
	var stats evidence.IngestStats

	data, err := os.ReadFile(path)
	if err != nil {
		return stats, fmt.Errorf("failed to read evidence file: %w", err)
	}
	var records []evidence.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return stats, fmt.Errorf("failed to parse evidence file: %w", err)
	}

	stats, err = a.ingester.Ingest(ctx, records)
	if err != nil {
		return stats, err
	}

	if a.database != nil {
		if err := a.database.SaveEvidence(ctx, a.store.Snapshot()); err != nil {
			a.logger.Warn("evidence persistence failed", zap.Error(err))
		}
	}
	return stats, nil
}

// close releases the app's external connections.
func (a *app) close() {
	if a.database != nil {
		a.database.Close()
	}
	_ = a.client.Close()
	_ = a.logger.Sync()
}
