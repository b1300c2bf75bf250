// Package server provides the HTTP REST API for the career copilot.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/career-copilot/internal/config"
	"github.com/jonathan/career-copilot/internal/copilot"
	"github.com/jonathan/career-copilot/internal/db"
	"github.com/jonathan/career-copilot/internal/evidence"
	"github.com/jonathan/career-copilot/internal/pipeline"
	"github.com/jonathan/career-copilot/internal/server/middleware"
	"github.com/jonathan/career-copilot/internal/server/ratelimit"
	"github.com/jonathan/career-copilot/internal/session"
)

// Dependencies carries the wired application components the server exposes.
// DB is required; accounts and durable drafts live there.
type Dependencies struct {
	Sessions    *session.Store
	Evidence    *evidence.Store
	Ingester    *evidence.Ingester
	Copilot     *copilot.Service
	DB          *db.DB
	NewPipeline func(progress pipeline.ProgressFunc) *pipeline.Orchestrator
	UseBrowser  bool
	JWTSecret   string
	ListenAddr  string
	Logger      *zap.Logger
}

// Server represents the HTTP server.
type Server struct {
	httpServer  *http.Server
	sessions    *session.Store
	evidence    *evidence.Store
	ingester    *evidence.Ingester
	copilot     *copilot.Service
	db          *db.DB
	newPipeline func(progress pipeline.ProgressFunc) *pipeline.Orchestrator
	results     *resultCache
	rateLimiter *ratelimit.Limiter
	validator   *validator.Validate
	useBrowser  bool
	baseCtx     context.Context
	cancelBase  context.CancelFunc
	logger      *zap.Logger
}

// New creates a server instance.
func New(deps Dependencies) (*Server, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required for the server")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	s := &Server{
		sessions:    deps.Sessions,
		evidence:    deps.Evidence,
		ingester:    deps.Ingester,
		copilot:     deps.Copilot,
		db:          deps.DB,
		newPipeline: deps.NewPipeline,
		results:     newResultCache(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.LoadConfig()),
		validator:   validator.New(),
		useBrowser:  deps.UseBrowser,
		baseCtx:     baseCtx,
		cancelBase:  cancelBase,
		logger:      logger,
	}

	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		cancelBase()
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}
	jwtConfig, err := config.NewJWTConfig(deps.JWTSecret)
	if err != nil {
		cancelBase()
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	jwtService := NewJWTService(jwtConfig)
	authHandler := NewAuthHandler(NewUserService(deps.DB, passwordConfig), jwtService)
	requireAuth := middleware.Auth(jwtService.AsTokenValidator())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /sessions", requireAuth(http.HandlerFunc(s.handleCreateSession)))
	mux.Handle("POST /sessions/stream", requireAuth(http.HandlerFunc(s.handleCreateSessionStream)))
	mux.Handle("GET /sessions", requireAuth(http.HandlerFunc(s.handleListSessions)))
	mux.Handle("GET /sessions/{id}", requireAuth(http.HandlerFunc(s.handleGetSession)))
	mux.Handle("GET /sessions/{id}/draft", requireAuth(http.HandlerFunc(s.handleGetDraft)))
	mux.Handle("POST /sessions/{id}/persona", requireAuth(http.HandlerFunc(s.handleSetPersona)))
	mux.Handle("POST /copilot/query", requireAuth(http.HandlerFunc(s.handleCopilotQuery)))
	mux.Handle("POST /evidence", requireAuth(http.HandlerFunc(s.handleIngestEvidence)))

	addr := deps.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for streamed runs
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start begins listening and blocks until SIGINT or SIGTERM.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go s.sweepSessions()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	s.logger.Info("shutting down server")

	// Abort background runs before draining connections.
	s.cancelBase()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.rateLimiter.Stop()
	if s.db != nil {
		s.db.Close()
	}
	s.logger.Info("server stopped")
	return nil
}

// sweepSessions periodically removes terminal sessions past their retention
// window so the in-memory store does not grow without bound.
func (s *Server) sweepSessions() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case now := <-ticker.C:
			if n := s.sessions.SweepExpired(now); n > 0 {
				s.logger.Info("expired sessions swept", zap.Int("count", n))
			}
			// Cached run results follow their session's lifetime.
			if n := s.results.prune(func(id uuid.UUID) bool {
				_, err := s.sessions.Get(id)
				return err == nil
			}); n > 0 {
				s.logger.Info("stale cached results pruned", zap.Int("count", n))
			}
		}
	}
}

// withCORS adds CORS headers.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs each request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// withRateLimit enforces per-client budgets.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientIP(r), r.URL.Path, r.Method)
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		}
		if !allowed {
			if info.RetryAfter > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())+1))
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, preferring the proxy header.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
