// Package health exposes liveness and the last cycle report over HTTP,
// alongside the prometheus metrics endpoint.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rotatarr/rotatarr/internal/core/engine"
)

// ReportSource supplies the most recent cycle report (nil before the
// first cycle completes).
type ReportSource func() *engine.Report

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	source ReportSource
	server *http.Server
}

// NewServer creates a health server on the given port.
func NewServer(source ReportSource, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		source: source,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/report", s.handleReport)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{"status": "ok"}
	if report := s.source(); report != nil {
		response["lastRun"] = report.StartedAt.Format("2006-01-02T15:04:05Z07:00")
		response["summary"] = report.Summary()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := s.source()
	if report == nil {
		http.Error(w, `{"error":"no cycle completed yet"}`, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
