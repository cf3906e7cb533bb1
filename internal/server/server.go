package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/freshcart/support-agent/internal/agent"
	"github.com/freshcart/support-agent/internal/eval"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

// Config holds HTTP server settings.
type Config struct {
	Addr         string `envconfig:"SERVER_ADDR" default:":8080"`
	ReadTimeout  int    `envconfig:"SERVER_READ_TIMEOUT" default:"30"`
	WriteTimeout int    `envconfig:"SERVER_WRITE_TIMEOUT" default:"120"`
}

// Server wires the chat API routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server

	orchestrator *agent.Orchestrator
	evaluator    *eval.Evaluator
	evalCases    []eval.Case
}

// New creates a Server with all routes wired. evalCases may be empty; the
// evaluate endpoint then reports a conflict instead of running.
func New(cfg Config, orchestrator *agent.Orchestrator, evaluator *eval.Evaluator, evalCases []eval.Case) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}).Handler)

	s := &Server{
		router:       router,
		orchestrator: orchestrator,
		evaluator:    evaluator,
		evalCases:    evalCases,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		},
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/evaluate", s.handleEvaluate)
		r.Get("/sessions/{sessionID}/history", s.handleHistory)
	})

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	logx.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
