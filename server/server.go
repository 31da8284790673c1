// Package server exposes configured jobs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"csvxml/job"
	"csvxml/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	Addr string `mapstructure:"addr"`
}

// Server converts request bodies with the settings of a named job.
type Server struct {
	jobs   []*job.Config
	router *chi.Mux
	server *http.Server
}

func New(jobs []*job.Config) *Server {
	s := &Server{
		jobs:   jobs,
		router: chi.NewRouter(),
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/jobs/{name}/convert", s.handleConvert)
	return s
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	j := job.Find(s.jobs, name)
	if j == nil {
		respondError(w, r, http.StatusNotFound, "unknown job: "+name)
		return
	}
	if _, err := j.Transcode(); err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	log := logging.WithFields(r.Context(), "job", j.Name)
	w.Header().Set("Content-Type", "application/xml")
	res, err := job.NewRunner(j, nil, nil, log).Convert(r.Context(), r.Body, w)
	if err != nil && res.Bytes == 0 {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if err != nil {
		// The status line is gone once output started.
		log.Error("conversion failed", "run_id", res.RunID, "bytes", res.Bytes, "error", err)
		return
	}
	log.Info("conversion finished",
		"run_id", res.RunID,
		"records", res.Records,
		"dropped", res.Dropped,
		"bytes", res.Bytes,
	)
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	logging.FromContext(r.Context()).Warn("request error",
		"path", r.URL.Path,
		"status", status,
		"error", msg,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg, RequestID: middleware.GetReqID(r.Context())})
}
