// Package api exposes CCOS's administrative HTTP surface: capability
// listing and execution, discovery resolution, orchestration, and
// operational endpoints (health, metrics), routed with go-chi.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ccos-project/ccos-core/ccoslog"
	"github.com/ccos-project/ccos-core/discovery"
	"github.com/ccos-project/ccos-core/marketplace"
	"github.com/ccos-project/ccos-core/orchestrator"
)

// Server wires the marketplace, discovery engine, and orchestrator to
// an HTTP router.
type Server struct {
	mk     *marketplace.Marketplace
	engine *discovery.Engine
	orch   *orchestrator.Orchestrator
	logger ccoslog.Logger
}

// NewServer builds a Server. orch may be nil, in which case
// POST /orchestrate responds 503.
func NewServer(mk *marketplace.Marketplace, engine *discovery.Engine, orch *orchestrator.Orchestrator, logger ccoslog.Logger) *Server {
	if logger == nil {
		logger = ccoslog.NoOp()
	}
	return &Server{mk: mk, engine: engine, orch: orch, logger: logger.WithComponent("api")}
}

// Router builds the chi router for this server's endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/capabilities", func(r chi.Router) {
		r.Get("/", s.handleListCapabilities)
		r.Get("/{id}", s.handleGetCapability)
		r.Post("/{id}/execute", s.handleExecuteCapability)
	})

	r.Post("/discovery/resolve", s.handleResolve)
	r.Post("/orchestrate", s.handleOrchestrate)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.InfoContext(r.Context(), "request received", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
