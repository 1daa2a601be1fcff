// Package api serves the pixelbar lighting HTTP API: the v1 named-group
// interface used by the touchscreen, the compact v2 hex interface used by
// PixelDash, and the preset endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/pixelbar/ledcontrol/internal/controller"
	"github.com/pixelbar/ledcontrol/internal/preset"
)

// Server is the HTTP API server.
type Server struct {
	addr       string
	ctrl       *controller.Controller
	presets    *preset.Store
	groups     []string
	httpServer *http.Server
}

// NewServer creates a new API server. groups holds the presentation names of
// the LED groups in hardware wiring order.
func NewServer(host string, port int, ctrl *controller.Controller, presets *preset.Store, groups []string) *Server {
	return &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		ctrl:    ctrl,
		presets: presets,
		groups:  groups,
	}
}

// Handler builds the route tree. Split out from Run so tests can exercise the
// handlers without a listening socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(30 * time.Second))

		api.Route("/v1", func(r chi.Router) {
			r.Get("/get", s.handleGetV1)
			r.Post("/set", s.handleSetV1)
		})

		api.Route("/v2", func(r chi.Router) {
			r.Get("/", s.handleGetV2)
			r.Post("/", s.handleSetV2)
			r.Patch("/", s.handlePatchV2)

			r.Route("/presets", func(r chi.Router) {
				r.Get("/", s.handleListPresets)
				r.Post("/", s.handleSavePreset)
				r.Delete("/{id}", s.handleDeletePreset)
				r.Post("/{id}/apply", s.handleApplyPreset)
			})
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// requestLogger logs one line per handled request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
