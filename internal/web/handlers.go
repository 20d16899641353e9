package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/biopipe/internal/logging"
	"github.com/JonMunkholm/biopipe/internal/pipeline"
	"github.com/JonMunkholm/biopipe/internal/processing"
	"github.com/JonMunkholm/biopipe/internal/report"
	"github.com/JonMunkholm/biopipe/internal/scheduler"
)

// healthTimeout bounds the database ping of /healthz.
const healthTimeout = 2 * time.Second

// handleHealth reports whether the database is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			logging.FromContext(ctx).Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Running   bool                                `json:"running"`
	NextRun   *time.Time                          `json:"nextRun,omitempty"`
	LastCycle *pipeline.Summary                   `json:"lastCycle,omitempty"`
	Limiters  map[string]processing.LimiterStatus `json:"limiters"`
}

// handleStatus returns the cycle state and the active batch limiters.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Limiters: map[string]processing.LimiterStatus{}}
	if s.deps.Trigger != nil {
		resp.Running = s.deps.Trigger.Running()
		if next := s.deps.Trigger.Next(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	if s.deps.Cycles != nil {
		resp.LastCycle = s.deps.Cycles.Last()
	}
	if s.deps.Limiters != nil {
		resp.Limiters = s.deps.Limiters.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReport runs a validation report for one provider. Query parameters
// max, valid and invalid override the configured limits.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		http.NotFound(w, r)
		return
	}
	opts, err := reportOptions(r, s.deps.Reports.Defaults())
	if err != nil {
		respondError(w, r, err)
		return
	}

	identifier := chi.URLParam(r, "identifier")
	ctx := logging.WithProvider(r.Context(), identifier)
	rep, err := s.deps.Reports.Report(ctx, identifier, opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// reportOptions applies query overrides to defaults.
func reportOptions(r *http.Request, defaults report.Options) (report.Options, error) {
	opts := defaults
	for name, dst := range map[string]*int{
		"max":     &opts.MaxNrObservationsToRead,
		"valid":   &opts.NrValidObservationsInReport,
		"invalid": &opts.NrInvalidObservationsInReport,
	} {
		v, err := parseIntParam(r, name, *dst)
		if err != nil {
			return defaults, err
		}
		*dst = v
	}
	return opts, nil
}

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %s=%q", errInvalidParam, name, val)
	}
	return i, nil
}

// handleTriggerCycle starts a cycle in the background and returns at once.
func (s *Server) handleTriggerCycle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Trigger == nil {
		http.NotFound(w, r)
		return
	}
	if s.deps.Trigger.Running() {
		respondError(w, r, scheduler.ErrAlreadyRunning)
		return
	}

	go func() {
		err := s.deps.Trigger.RunNow(s.cycleCtx)
		if err != nil && !errors.Is(err, scheduler.ErrAlreadyRunning) {
			logging.FromContext(s.cycleCtx).Error("manual cycle failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
