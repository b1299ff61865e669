package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dockfleet/dockfleet/pkg/config"
	"github.com/dockfleet/dockfleet/pkg/executor"
	"github.com/dockfleet/dockfleet/pkg/log"
	"github.com/dockfleet/dockfleet/pkg/metrics"
	"github.com/dockfleet/dockfleet/pkg/storage"
)

// Server is the HTTP front of the control plane
type Server struct {
	cfg   *config.Config
	exec  *executor.Executor
	store storage.Store
	auth  *authenticator

	httpServer *http.Server
}

// NewServer creates the API server
func NewServer(cfg *config.Config, exec *executor.Executor, store storage.Store) *Server {
	s := &Server{
		cfg:   cfg,
		exec:  exec,
		store: store,
		auth:  newAuthenticator([]byte(cfg.JWTSecret), cfg.TokenTTL, store),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi route tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", metrics.HealthHandler())
	r.Get("/readyz", metrics.ReadyHandler())
	r.Get("/livez", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Post("/api/auth/login", s.handleLogin)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.middleware)

		// Hosts and grants
		r.Get("/hosts", s.handleListHosts)
		r.Post("/hosts", s.handleCreateHost)
		r.Get("/hosts/{hostID}", s.handleGetHost)
		r.Put("/hosts/{hostID}", s.handleUpdateHost)
		r.Delete("/hosts/{hostID}", s.handleDeleteHost)
		r.Post("/hosts/{hostID}/test", s.handleTestHost)
		r.Get("/hosts/{hostID}/breaker", s.handleBreakerSnapshot)
		r.Post("/hosts/{hostID}/breaker/reset", s.handleBreakerReset)
		r.Put("/grants", s.handlePutGrant)
		r.Delete("/grants/{userID}/{hostID}", s.handleDeleteGrant)

		// Containers
		r.Get("/containers", s.handleListContainers)
		r.Post("/containers", s.handleCreateContainer)
		r.Get("/containers/{id}", s.handleInspectContainer)
		r.Delete("/containers/{id}", s.handleRemoveContainer)
		r.Post("/containers/{id}/start", s.handleStartContainer)
		r.Post("/containers/{id}/stop", s.handleStopContainer)
		r.Post("/containers/{id}/restart", s.handleRestartContainer)
		r.Post("/containers/{id}/pause", s.handlePauseContainer)
		r.Post("/containers/{id}/unpause", s.handleUnpauseContainer)
		r.Get("/containers/{id}/logs", s.handleContainerLogs)
		r.Get("/containers/{id}/stats", s.handleContainerStats)
		r.Get("/containers/{id}/exec", s.handleExec)

		// Images
		r.Get("/images", s.handleListImages)
		r.Post("/images/pull", s.handlePullImage)
		r.Post("/images/prune", s.handlePruneImages)
		r.Delete("/images/{id}", s.handleRemoveImage)

		// Volumes
		r.Get("/volumes", s.handleListVolumes)
		r.Post("/volumes", s.handleCreateVolume)
		r.Post("/volumes/prune", s.handlePruneVolumes)
		r.Delete("/volumes/{name}", s.handleRemoveVolume)

		// Networks
		r.Get("/networks", s.handleListNetworks)
		r.Post("/networks", s.handleCreateNetwork)
		r.Post("/networks/prune", s.handlePruneNetworks)
		r.Delete("/networks/{id}", s.handleRemoveNetwork)

		// Swarm
		r.Post("/swarm/init", s.handleSwarmInit)
		r.Post("/swarm/join", s.handleSwarmJoin)
		r.Post("/swarm/leave", s.handleSwarmLeave)
		r.Get("/swarm/tokens", s.handleSwarmTokens)
		r.Get("/services", s.handleListServices)
		r.Post("/services", s.handleCreateService)
		r.Get("/services/{id}", s.handleGetService)
		r.Put("/services/{id}", s.handleUpdateService)
		r.Delete("/services/{id}", s.handleRemoveService)
		r.Post("/services/{id}/scale", s.handleScaleService)
		r.Get("/services/{id}/tasks", s.handleListTasks)
		r.Get("/services/{id}/logs", s.handleServiceLogs)
		r.Get("/nodes", s.handleListNodes)
		r.Get("/nodes/{id}", s.handleGetNode)
		r.Post("/nodes/{id}/availability", s.handleNodeAvailability)
		r.Delete("/nodes/{id}", s.handleRemoveNode)
		r.Get("/secrets", s.handleListSecrets)
		r.Post("/secrets", s.handleCreateSecret)
		r.Delete("/secrets/{id}", s.handleRemoveSecret)
		r.Get("/configs", s.handleListConfigs)
		r.Post("/configs", s.handleCreateConfig)
		r.Delete("/configs/{id}", s.handleRemoveConfig)

		// System
		r.Get("/system/info", s.handleSystemInfo)
		r.Get("/system/version", s.handleSystemVersion)
		r.Get("/system/df", s.handleDiskUsage)
		r.Post("/system/prune", s.handleSystemPrune)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// Start begins serving; blocks until the listener fails or Shutdown
func (s *Server) Start() error {
	log.WithComponent("api").Info().
		Str("addr", s.cfg.ListenAddr).
		Msg("api server listening")
	metrics.UpdateComponent("api", true, "listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		metrics.UpdateComponent("api", false, err.Error())
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// instrument records request counts and latency per method
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
		timer.ObserveDuration(metrics.APIRequestDuration.WithLabelValues(r.Method))
	})
}

// hostParam reads the optional target host; empty means the caller's
// default host.
func hostParam(r *http.Request) string {
	return r.URL.Query().Get("host")
}
