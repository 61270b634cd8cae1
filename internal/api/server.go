// Package api exposes the analyzer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"report-analyzer/internal/config"
	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/workflow"
)

const (
	shutdownTimeout = 30 * time.Second
	version         = "1.0.0"
)

// Runner is the part of workflow.Analyzer the server needs.
type Runner interface {
	Run(ctx context.Context, path string) (*workflow.Result, error)
	Latest() *workflow.Result
	Stats() interfaces.AnalyzerStats
}

// Server serves the analysis API
type Server struct {
	runner Runner
	config *config.AnalyzerConfig
	router *mux.Router
	logger zerolog.Logger

	// Background runs use baseCtx so they stop with the server.
	baseCtx context.Context
	runs    sync.WaitGroup

	mu      sync.Mutex
	running string
	lastErr string
}

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AnalyzeRequest asks for an analysis of a file or directory
type AnalyzeRequest struct {
	Path string `json:"path"`
}

// NewServer creates a server. Runs started through the API are cancelled when ctx is.
func NewServer(ctx context.Context, runner Runner, cfg *config.AnalyzerConfig, logger zerolog.Logger) *Server {
	s := &Server{
		runner:  runner,
		config:  cfg,
		router:  mux.NewRouter(),
		logger:  logger.With().Str("component", "api").Logger(),
		baseCtx: ctx,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured address until ctx is done, then shuts down gracefully
// and waits for running analyses.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  seconds(s.config.Server.ReadTimeout),
		WriteTimeout: seconds(s.config.Server.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.runs.Wait()
	s.logger.Info().Msg("server stopped")
	return nil
}

// Wait blocks until every background analysis has returned.
func (s *Server) Wait() {
	s.runs.Wait()
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.corsMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/reports/latest", s.handleLatestReport).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/graph.gexf", s.handleGraph).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("remote", r.RemoteAddr).
			Dur("elapsed", time.Since(start)).
			Msg("request completed")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   version,
		},
	})
}

// handleAnalyze starts an analysis in the background. Only one analysis runs at a time.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.Path == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Path is required")
		return
	}

	s.mu.Lock()
	if s.running != "" {
		current := s.running
		s.mu.Unlock()
		s.writeErrorResponse(w, http.StatusConflict, fmt.Sprintf("Analysis of %s is already running", current))
		return
	}
	s.running = req.Path
	s.lastErr = ""
	s.mu.Unlock()

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		_, err := s.runner.Run(s.baseCtx, req.Path)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.running = ""
		if err != nil {
			s.lastErr = err.Error()
			s.logger.Error().Err(err).Str("path", req.Path).Msg("analysis failed")
		}
	}()

	s.writeJSONResponse(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data: map[string]any{
			"message": "Analysis started successfully",
			"path":    req.Path,
			"status":  "running",
		},
	})
}

func (s *Server) handleLatestReport(w http.ResponseWriter, _ *http.Request) {
	latest := s.runner.Latest()
	if latest == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "No report available")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, APIResponse{Success: true, Data: latest})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := map[string]any{
		"running":    s.running != "",
		"path":       s.running,
		"last_error": s.lastErr,
	}
	s.mu.Unlock()

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"analyzer": s.runner.Stats(),
			"status":   status,
		},
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	latest := s.runner.Latest()
	if latest == nil || latest.Knowledge == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "No knowledge graph available")
		return
	}
	w.Header().Set("Content-Type", "application/gexf+xml")
	w.WriteHeader(http.StatusOK)
	if err := latest.Knowledge.WriteGEXF(w); err != nil {
		s.logger.Error().Err(err).Msg("failed to write gexf")
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    json.RawMessage(s.config.String()),
	})
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSONResponse(w, status, APIResponse{Success: false, Error: message})
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
