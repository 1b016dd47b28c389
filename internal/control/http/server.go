package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bizzlechizzle/au-archive/internal/ingest/copier"
	"github.com/bizzlechizzle/au-archive/internal/ingest/orchestrator"
	"github.com/bizzlechizzle/au-archive/internal/log"
	"github.com/bizzlechizzle/au-archive/internal/store"
)

// Config controls the control-http server's middleware behavior.
type Config struct {
	RateLimit RateLimitConfig
}

// Server exposes the operator-facing import lifecycle over HTTP:
// start, cancel, resume, and list resumable sessions, plus a
// Prometheus scrape endpoint.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *store.Store
	Config       Config
}

// Router builds a chi.Router wired to the server's collaborators. It
// does not start listening; the caller owns the net/http.Server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing("archive-control"))
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Metrics)
	r.Use(RateLimit(s.Config.RateLimit))

	r.Route("/v1/imports", func(r chi.Router) {
		r.Post("/", s.handleStartImport)
		r.Get("/resumable", s.handleListResumable)
		r.Post("/{sessionID}/cancel", s.handleCancelImport)
		r.Post("/{sessionID}/resume", s.handleResumeImport)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealthz)

	return r
}

type startImportRequest struct {
	LocationID     string   `json:"location_id"`
	SourcePaths    []string `json:"source_paths"`
	Importer       string   `json:"importer"`
	ForcedStrategy string   `json:"forced_strategy"`
	BytesPerSecond int64    `json:"bytes_per_second"`
}

type sessionAcceptedResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// handleStartImport validates the request and runs the five ingest
// stages in a detached goroutine so the HTTP call itself returns
// immediately. The session row is written by the orchestrator inside
// that goroutine, not before the response; the accepted response does
// not carry a session id.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	var req startImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.LocationID == "" || len(req.SourcePaths) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "location_id and source_paths are required")
		return
	}

	in := orchestrator.Input{
		LocationID:     req.LocationID,
		SourcePaths:    req.SourcePaths,
		Importer:       req.Importer,
		ForcedStrategy: copier.Strategy(req.ForcedStrategy),
		BytesPerSecond: req.BytesPerSecond,
	}

	logger := log.FromContext(r.Context())

	runCtx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := s.Orchestrator.Run(runCtx, in); err != nil {
			importSessionsStarted.WithLabelValues("failed").Inc()
			logger.Error().Err(err).Str("location_id", req.LocationID).Msg("control: import session failed")
			return
		}
		importSessionsStarted.WithLabelValues("completed").Inc()
	}()

	writeJSON(w, http.StatusAccepted, sessionAcceptedResponse{Status: "accepted"})
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if ok := s.Orchestrator.Cancel(sessionID); !ok {
		writeError(w, http.StatusNotFound, "not_running", "session is not currently running on this instance")
		return
	}
	importSessionsCancelled.Inc()
	writeJSON(w, http.StatusAccepted, sessionAcceptedResponse{SessionID: sessionID, Status: "cancelling"})
}

func (s *Server) handleResumeImport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	logger := log.FromContext(r.Context())

	runCtx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := s.Orchestrator.Resume(runCtx, sessionID); err != nil {
			importSessionsStarted.WithLabelValues("resume_failed").Inc()
			logger.Error().Err(err).Str("session_id", sessionID).Msg("control: resume failed")
			return
		}
		importSessionsStarted.WithLabelValues("resumed").Inc()
	}()

	writeJSON(w, http.StatusAccepted, sessionAcceptedResponse{SessionID: sessionID, Status: "resuming"})
}

type resumableSessionResponse struct {
	SessionID    string `json:"session_id"`
	LocationID   string `json:"location_id"`
	Status       string `json:"status"`
	LastStep     int    `json:"last_step"`
	ErrorMessage string `json:"error_message,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

func (s *Server) handleListResumable(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Store.ListResumable(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	out := make([]resumableSessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, resumableSessionResponse{
			SessionID:    sess.SessionID,
			LocationID:   sess.LocationID,
			Status:       string(sess.Status),
			LastStep:     sess.LastStep,
			ErrorMessage: sess.ErrorMessage,
			UpdatedAt:    sess.UpdatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
