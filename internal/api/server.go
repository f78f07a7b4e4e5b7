package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/api/handler"
	mw "github.com/edvin/backhaul/internal/api/middleware"
	"github.com/edvin/backhaul/internal/config"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/engine"
	"github.com/edvin/backhaul/internal/remote"
)

//go:embed docs/swagger.json
var swaggerJSON []byte

type Server struct {
	router       chi.Router
	logger       zerolog.Logger
	services     *core.Services
	pool         *pgxpool.Pool
	orchestrator *engine.Orchestrator
	cfg          *config.Config
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, services *core.Services, orchestrator *engine.Orchestrator, cfg *config.Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		logger:       logger,
		services:     services,
		pool:         pool,
		orchestrator: orchestrator,
		cfg:          cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// API documentation
	s.router.Get("/docs/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(swaggerJSON)
	})
	s.router.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(scalarHTML))
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		// Agents
		agent := handler.NewAgent(s.services.Agent, remote.NewBrowser())
		r.Get("/agents", agent.List)
		r.Post("/agents", agent.Create)
		r.Get("/agents/{id}", agent.Get)
		r.Put("/agents/{id}", agent.Update)
		r.Delete("/agents/{id}", agent.Delete)
		r.Post("/agents/{id}/rotate-key", agent.RotateKey)
		r.Get("/agents/{id}/browse", agent.Browse)

		// Backup plans
		plan := handler.NewPlan(s.services.Plan, s.services.Agent, s.orchestrator)
		r.Get("/plans", plan.List)
		r.Post("/plans", plan.Create)
		r.Get("/plans/{id}", plan.Get)
		r.Put("/plans/{id}", plan.Update)
		r.Delete("/plans/{id}", plan.Delete)
		r.Post("/plans/{id}/execute", plan.Execute)
		r.Post("/plans/{id}/simulate", plan.Simulate)

		// Executions
		execution := handler.NewExecution(s.services.Execution, s.services.Log, s.orchestrator)
		r.Get("/plans/{planID}/executions", execution.ListByPlan)
		r.Get("/executions/{id}", execution.Get)
		r.Post("/executions/{id}/cancel", execution.Cancel)
		r.Get("/executions/{id}/stats", execution.Stats)

		// Execution logs
		logs := handler.NewLogs(s.services.Log)
		r.Get("/executions/{id}/logs", logs.List)

		// Live progress stream
		stream := handler.NewStream(s.services.Execution, s.services.Log, s.orchestrator)
		r.Get("/executions/{id}/stream", stream.Connect)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

const scalarHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Backhaul API</title>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
</head>
<body>
  <script id="api-reference" data-url="/docs/openapi.json"></script>
  <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body>
</html>`
