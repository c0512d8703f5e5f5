package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/internal/engine"
	"github.com/helicon-ai/mnemo/internal/privacy"
	"github.com/helicon-ai/mnemo/pkg/log"
	"github.com/helicon-ai/mnemo/pkg/tokens"
)

// Server exposes turn ingestion, context assembly, manual record writes, and
// job inspection over HTTP.
type Server struct {
	policy   config.Policy
	pipeline *engine.Pipeline
	turns    core.TurnRepository
	records  core.RecordRepository
	jobs     core.JobRepository
	gate     *privacy.Gate
	embedder core.Embedder // optional
	counter  tokens.Counter
	started  time.Time

	httpSrv *http.Server
}

func New(
	addr string,
	policy config.Policy,
	pipeline *engine.Pipeline,
	turns core.TurnRepository,
	records core.RecordRepository,
	jobs core.JobRepository,
	gate *privacy.Gate,
	embedder core.Embedder,
	counter tokens.Counter,
) *Server {
	s := &Server{
		policy:   policy,
		pipeline: pipeline,
		turns:    turns,
		records:  records,
		jobs:     jobs,
		gate:     gate,
		embedder: embedder,
		counter:  counter,
		started:  time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/conversations/{conversationID}/turns", s.handleAppendTurn)
		r.Post("/conversations/{conversationID}/context", s.handleAssembleContext)
		r.Post("/conversations/{conversationID}/consolidate", s.handleConsolidate)
		r.Post("/conversations/{conversationID}/end", s.handleEndConversation)
		r.Post("/records", s.handleCreateRecord)
		r.Get("/jobs/{jobID}", s.handleGetJob)
	})

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Str("addr", s.httpSrv.Addr).Msg("starting http server")

	// Request contexts inherit the app logger.
	s.httpSrv.BaseContext = func(net.Listener) context.Context {
		return context.WithoutCancel(ctx)
	}

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": core.AppVersion,
		"uptime":  time.Since(s.started).Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
