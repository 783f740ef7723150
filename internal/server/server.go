// Package server exposes the plugin host over HTTP: host management
// endpoints, Prometheus metrics, and every installed plugin's routes mounted
// under /api/v1/plugins/{plugin}/.
package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/core"
)

// Server hosts the plugin HTTP surface.
type Server struct {
	Service *core.Service
	Router  *mux.Router
	logger  zerolog.Logger
	srv     *http.Server
}

// Option customizes a Server during construction.
type Option func(*Server)

// WithServerLogger sets the diagnostics logger.
func WithServerLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer constructs a server bound to addr.
func NewServer(svc *core.Service, addr string, opts ...Option) *Server {
	router := mux.NewRouter()
	s := &Server{
		Service: svc,
		Router:  router,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	router.Use(s.recoverMiddleware)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/plugins", s.handleListPlugins).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/plugins/{plugin}/config", s.handleConfigurePlugin).Methods(http.MethodPost)
	router.PathPrefix("/api/v1/plugins/{plugin}/").HandlerFunc(s.handlePluginRoute)

	s.srv = &http.Server{
		Handler:      handlers.LoggingHandler(os.Stdout, router),
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPlugins(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plugins": s.Service.RegisteredPlugins()})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
