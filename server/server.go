// Package server handles HTTP endpoints for the serve mode.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Runner triggers one scheduler cycle.
type Runner interface {
	Run(ctx context.Context) error
}

// Server handles HTTP requests. It exists for deployments where an
// external HTTP trigger (Cloud Scheduler, uptime pinger) drives the
// cycle instead of cron.
type Server struct {
	runner Runner
	logger *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Runner Runner
	Logger *slog.Logger
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		runner: cfg.Runner,
		logger: cfg.Logger,
	}
}

// ListenAndServe sets up routes and serves until the listener fails.
func (s *Server) ListenAndServe(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/checkz", s.handleCheck)

	// Timeouts prevent resource exhaustion from slow clients.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute, // a check cycle can ride out retry backoff
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Check endpoint triggered")

	if err := s.runner.Run(r.Context()); err != nil {
		s.logger.Error("Check cycle failed", "error", err)
		http.Error(w, "Check failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"completed"}`); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
