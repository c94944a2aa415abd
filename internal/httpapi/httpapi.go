// Package httpapi implements the read-only HTTP admin surface (C12): a
// gorilla/mux router exposing liveness/readiness, Prometheus metrics,
// and JSON views over active backfills and alerts. Mutating operations
// are reached only through the CLI, never this surface.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	svcerrors "github.com/entsoe-ingest/collector/infrastructure/errors"
	"github.com/entsoe-ingest/collector/internal/alerting"
	"github.com/entsoe-ingest/collector/internal/backfillengine"
	"github.com/entsoe-ingest/collector/pkg/logger"
)

// ReadinessChecker reports whether the process is ready to serve, backed
// by the scheduler's database preflight result.
type ReadinessChecker interface {
	Ready() bool
}

// Server wires the admin surface's dependencies into a *mux.Router.
type Server struct {
	backfills  *backfillengine.Engine
	alerts     *alerting.Engine
	readiness  ReadinessChecker
	registry   *prometheus.Registry
	log        *logger.Logger
}

// New constructs a Server. A nil readiness checker reports always-ready.
func New(backfills *backfillengine.Engine, alerts *alerting.Engine, readiness ReadinessChecker, registry *prometheus.Registry, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Server{backfills: backfills, alerts: alerts, readiness: readiness, registry: registry, log: log}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/backfills", s.handleListBackfills).Methods(http.MethodGet)
	r.HandleFunc("/backfills/{id}", s.handleGetBackfill).Methods(http.MethodGet)
	r.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
	return r
}

type healthzResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
	Time   string `json:"time"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ready := true
	if s.readiness != nil {
		ready = s.readiness.Ready()
	}
	writeJSON(w, http.StatusOK, healthzResponse{Status: "up", Ready: ready, Time: time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleListBackfills(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.backfills.ListActiveBackfills(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetBackfill(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	progress, err := s.backfills.GetBackfillStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if progress == nil {
		s.writeError(w, svcerrors.NotFound("backfill", id))
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	active, err := s.alerts.ListActiveAlerts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}

type errorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// writeError maps err to an HTTP status via infrastructure/errors: a
// *svcerrors.ServiceError carries its own status and code, anything else
// reports 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.log.WithField("error", err).Warn("httpapi: request failed")
	status := svcerrors.GetHTTPStatus(err)
	resp := errorResponse{Error: err.Error()}
	if svcErr := svcerrors.GetServiceError(err); svcErr != nil {
		resp.Code = string(svcErr.Code)
		resp.Error = svcErr.Message
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ShutdownTimeout bounds how long the admin HTTP server is given to drain
// in-flight requests during graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// Shutdown is a thin wrapper so callers don't need to import net/http
// directly just to build the shutdown context.
func Shutdown(ctx context.Context, srv *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
