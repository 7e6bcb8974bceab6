package monitord

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server exposes the monitor snapshot over HTTP.
type Server struct {
	monitor *Monitor
	logger  *slog.Logger
	router  http.Handler
}

// NewServer constructs the HTTP API for monitor.
func NewServer(monitor *Monitor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{monitor: monitor, logger: logger}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the traced router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "monitord")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(api chi.Router) {
		api.Get("/operations/pending", s.PendingOperations)
		api.Get("/recoveries/pending", s.PendingRecoveries)
		api.Get("/config", s.Config)
	})
	return r
}

// Health reports 200 while refreshes are succeeding.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	status := http.StatusOK
	body := map[string]any{"status": "ok", "refreshed_at": snap.RefreshedAt}
	if !s.monitor.Healthy() {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		if snap.Error != "" {
			body["error"] = snap.Error
		}
	}
	s.writeJSON(w, status, body)
}

// PendingOperations lists live multisig operations.
func (s *Server) PendingOperations(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"operations":   snap.Operations,
		"refreshed_at": snap.RefreshedAt,
	})
}

// PendingRecoveries lists live recovery requests.
func (s *Server) PendingRecoveries(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"recoveries":   snap.Recoveries,
		"refreshed_at": snap.RefreshedAt,
	})
}

// Config returns the wallet and recovery configuration from the last refresh.
func (s *Server) Config(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	if snap.Wallet == nil {
		http.Error(w, "not yet refreshed", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"wallet":   snap.Wallet,
		"recovery": snap.Recovery,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", slog.Any("error", err))
	}
}
