// Package server exposes health and manual job triggers over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/drallgood/bookfeed/internal/logger"
	"github.com/drallgood/bookfeed/internal/scheduler"
)

// Trigger starts jobs in the background
type Trigger interface {
	Start(ctx context.Context, job string) error
	Running(job string) bool
}

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	trigger Trigger
	jobs    []string
	// baseCtx outlives individual requests so triggered runs are not cut short
	baseCtx context.Context
	logger  *logger.Logger
}

// New creates a new HTTP server. Runs started through /run use baseCtx.
func New(baseCtx context.Context, addr string, trigger Trigger, jobs []string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Get()
	}
	s := &Server{
		server:  &http.Server{Addr: addr},
		trigger: trigger,
		jobs:    jobs,
		baseCtx: baseCtx,
		logger:  log.Component("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthCheck)
	mux.HandleFunc("GET /jobs", s.handleJobs)
	mux.HandleFunc("POST /run/{job}", s.handleRun)

	s.server.Handler = logger.HTTPMiddleware(mux)
	s.server.ReadTimeout = 10 * time.Second
	s.server.WriteTimeout = 30 * time.Second
	s.server.IdleTimeout = 120 * time.Second
	return s
}

// Handler returns the root handler, for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.server.Addr,
	})

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	status := make(map[string]bool, len(s.jobs))
	for _, job := range s.jobs {
		status[job] = s.trigger.Running(job)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"running": status})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	job := r.PathValue("job")

	err := s.trigger.Start(s.baseCtx, job)
	switch {
	case err == nil:
		s.logger.Info("Job triggered over HTTP", map[string]interface{}{"job": job})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job": job})
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job", "job": job})
	case errors.Is(err, scheduler.ErrJobRunning):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "job is already running", "job": job})
	default:
		s.logger.Error("Failed to trigger job", map[string]interface{}{
			"job":   job,
			"error": err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
