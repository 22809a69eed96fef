// Package server is the payload controller's local operator/debug HTTP
// surface: /healthz, /status, and /metrics. It is not the control plane —
// that is the MAVLink link in internal/mavlink — but mirrors the
// teacher's h2c-wrapped http.ServeMux and middleware stack for anyone
// inspecting the payload from a laptop plugged into its debug port.
package server

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/skywave-sdr/payload/internal/calibration"
	"github.com/skywave-sdr/payload/internal/config"
	"github.com/skywave-sdr/payload/internal/middleware"
	"github.com/skywave-sdr/payload/internal/mission"
	"github.com/skywave-sdr/payload/internal/modeswitcher"
	"github.com/skywave-sdr/payload/internal/telemetry"
)

// Server serves the debug HTTP surface.
type Server struct {
	config       *config.Config
	dependencies *Dependencies
	mux          *http.ServeMux
	logger       *log.Logger
}

// New builds a Server around already-constructed components.
func New(cfg *config.Config, sw *modeswitcher.Switcher, calib *calibration.Engine, mis *mission.Executor, tel *telemetry.Source) *Server {
	deps := NewDependencies(cfg, sw, calib, mis, tel)

	s := &Server{
		config:       cfg,
		dependencies: deps,
		mux:          http.NewServeMux(),
		logger:       deps.Logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	metricsHandler := promhttp.HandlerFor(s.dependencies.Registry, promhttp.HandlerOpts{})

	s.mux.HandleFunc("/healthz", s.dependencies.handleHealthz)
	s.mux.HandleFunc("/status", s.dependencies.handleStatus)
	s.mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.RefreshMetrics()
		metricsHandler.ServeHTTP(w, r)
	}))
}

// buildHandler wraps the mux with the same middleware order the teacher
// uses: recovery outermost, then logging, then CORS.
func (s *Server) buildHandler() http.Handler {
	handler := http.Handler(s.mux)

	handler = middleware.CORS(s.config.Server.CORSOrigins)(handler)
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return h2c.NewHandler(handler, &http2.Server{})
}

// Start serves the debug HTTP surface until the process exits or
// ListenAndServe returns an error.
func (s *Server) Start() error {
	addr := s.config.ServerAddr()
	handler := s.buildHandler()

	s.logger.Printf("debug HTTP surface starting on %s", addr)
	s.logger.Printf("routes: /healthz /status /metrics")

	return http.ListenAndServe(addr, handler)
}

// Dependencies returns the shared component set, so Update can be called
// before each scrape without main reaching into server internals.
func (s *Server) Dependencies() *Dependencies {
	return s.dependencies
}

// RefreshMetrics updates every Prometheus collector from live component
// state; call this before/around scrape handling, e.g. from a
// promhttp.InstrumentMetricHandler wrapper or a short-lived ticker in
// main. Exposed as a method rather than hidden inside the handler so
// tests can call it deterministically.
func (s *Server) RefreshMetrics() {
	d := s.dependencies
	d.Metrics.Update(d.Switcher, d.Calibration, d.Mission, d.Telemetry)
}
