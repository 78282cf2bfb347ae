package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/services/proposals"
)

// Server exposes the control API: enqueue tasks, inspect the queue,
// browse stored postings and proposals, and manage the proposal prompt.
type Server struct {
	config    *common.Config
	logger    arbor.ILogger
	storage   interfaces.StorageManager
	generator interfaces.ProposalGenerator
	prompts   *proposals.PromptStore
	server    *http.Server
}

// New creates the HTTP server. The generator may be nil when no API key
// is configured; the generate endpoint then reports the capability as
// unavailable.
func New(
	config *common.Config,
	storage interfaces.StorageManager,
	generator interfaces.ProposalGenerator,
	prompts *proposals.PromptStore,
	logger arbor.ILogger,
) *Server {
	s := &Server{
		config:    config,
		logger:    logger,
		storage:   storage,
		generator: generator,
		prompts:   prompts,
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(s.setupRoutes()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/tasks", s.handleTasks)                 // GET (list), POST (enqueue)
	mux.HandleFunc("/api/tasks/", s.handleTaskByID)             // GET /{id}
	mux.HandleFunc("/api/jobs", s.handleJobs)                   // GET (list postings)
	mux.HandleFunc("/api/proposals", s.handleProposals)         // GET (list)
	mux.HandleFunc("/api/proposals/generate", s.handleGenerate) // POST
	mux.HandleFunc("/api/prompt", s.handlePrompt)               // GET, PUT

	return mux
}

// Start blocks serving HTTP until shutdown.
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
