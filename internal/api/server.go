// Package api exposes the HTTP control surface: health, metrics, loop
// start/stop, and alert inspection.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gradewatch/gradewatch/internal/metrics"
	"github.com/gradewatch/gradewatch/internal/monitor"
	"github.com/gradewatch/gradewatch/internal/orchestrator"
)

// Server wires HTTP handlers to the orchestrator and the alert store.
type Server struct {
	router chi.Router
	orch   *orchestrator.Orchestrator
	alerts monitor.AlertStore
	snaps  monitor.SnapshotStore
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	orch *orchestrator.Orchestrator,
	alerts monitor.AlertStore,
	snaps monitor.SnapshotStore,
	logger *zap.Logger,
) *Server {
	s := &Server{orch: orch, alerts: alerts, snaps: snaps, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Post("/start", s.start)
		r.Post("/stop", s.stop)
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.listAlerts)
			r.Delete("/{account_id}/{kind}", s.clearAlert)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.snaps.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "snapshot store unreachable")
		return
	}
	if err := s.alerts.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "alert store unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"state":   string(s.orch.StateNow()),
		"running": s.orch.IsRunning(),
	})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Start(r.Context()); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"state": string(s.orch.StateNow())})
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	s.orch.Stop()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"state": string(s.orch.StateNow())})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	kind := monitor.AlertKind(r.URL.Query().Get("kind"))
	kinds := []monitor.AlertKind{monitor.AlertBlockingCondition, monitor.AlertFetchError}
	if kind != "" {
		if !kind.Valid() {
			s.writeError(w, http.StatusBadRequest, "unknown alert kind")
			return
		}
		kinds = []monitor.AlertKind{kind}
	}

	out := make(map[string][]monitor.AlertRecord)
	for _, k := range kinds {
		recs, err := s.alerts.Get(r.Context(), k)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		list := make([]monitor.AlertRecord, 0, len(recs))
		for _, rec := range recs {
			list = append(list, rec)
		}
		out[string(k)] = list
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) clearAlert(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	kind := monitor.AlertKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown alert kind")
		return
	}
	if err := s.alerts.Clear(r.Context(), accountID, kind); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
