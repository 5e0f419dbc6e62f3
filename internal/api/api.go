// Package api provides the HTTP surface for TriageFlow.
//
// It exposes the webhook entry point that feeds the ingestion pipeline, the
// webhook verification handshake, and thin read endpoints over sessions and
// interaction history. All collaborators are injected at construction; the
// package holds no global service handles.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/healthbridge/triageflow/internal/messaging"
	"github.com/healthbridge/triageflow/internal/pipeline"
	"github.com/healthbridge/triageflow/internal/store"
)

// Default timeouts for the HTTP server.
const (
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds server settings.
type Config struct {
	Addr        string // listen address, e.g. ":8080"
	VerifyToken string // expected hub.verify_token on GET /webhook
}

// Server wires the HTTP routes to the ingestion pipeline and store.
type Server struct {
	cfg       Config
	pipeline  *pipeline.Pipeline
	store     store.Store
	messenger messaging.Service // nil disables reply delivery (dry runs, tests)
	router    chi.Router
}

// NewServer creates the HTTP server. messenger may be nil, in which case
// replies are computed and logged but not delivered.
func NewServer(cfg Config, p *pipeline.Pipeline, st store.Store, messenger messaging.Service) *Server {
	s := &Server{cfg: cfg, pipeline: p, store: st, messenger: messenger}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/webhook", s.verifyWebhookHandler)
	r.Post("/webhook", s.webhookHandler)
	r.Get("/sessions/{userKey}", s.sessionHandler)
	r.Get("/sessions/{userKey}/history", s.historyHandler)
	r.Get("/stats", s.statsHandler)
	r.Get("/health", s.healthHandler)

	s.router = r
	return s
}

// Router returns the configured handler, for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("TriageFlow API listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		slog.Info("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	}
}
