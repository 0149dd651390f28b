// Package server exposes the ops HTTP surface of a harvesting run: health,
// Prometheus metrics and the progress of the current job.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/afd-harvester/internal/afd"
	"github.com/JakeFAU/afd-harvester/internal/batch"
	"github.com/JakeFAU/afd-harvester/internal/metrics"
)

// Progress tracks the summary of the job currently running.
type Progress struct {
	mu        sync.RWMutex
	runID     string
	command   string
	startedAt time.Time
	jobs      map[string]batch.Summary
}

// NewProgress starts tracking a run.
func NewProgress(runID, command string, clock afd.Clock) *Progress {
	return &Progress{
		runID:     runID,
		command:   command,
		startedAt: clock.Now(),
		jobs:      make(map[string]batch.Summary),
	}
}

// Update records the latest summary of job. It matches batch.WithProgress.
func (p *Progress) Update(job string, sum batch.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs[job] = sum
}

// Snapshot is the JSON view of Progress.
type Snapshot struct {
	RunID     string                   `json:"run_id"`
	Command   string                   `json:"command"`
	StartedAt time.Time                `json:"started_at"`
	Jobs      map[string]batch.Summary `json:"jobs"`
}

// Snapshot copies the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	jobs := make(map[string]batch.Summary, len(p.jobs))
	for k, v := range p.jobs {
		jobs[k] = v
	}
	return Snapshot{RunID: p.runID, Command: p.command, StartedAt: p.startedAt, Jobs: jobs}
}

// Server wires the ops routes.
type Server struct {
	router   chi.Router
	progress *Progress
	logger   *zap.Logger
}

// New constructs a Server with middleware and routes.
func New(progress *Progress, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{progress: progress, logger: logger}
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Use(s.recoverer)
	r.Get("/healthz", s.healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/v1/progress", s.getProgress)
	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown ops server: %w", err)
		}
		return nil
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	if s.progress == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run in progress"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.progress.Snapshot())
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}
