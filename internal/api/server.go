// Package api exposes the HTTP interface for the branding service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/config"
	"github.com/berginj/glovebrand/internal/metrics"
	"github.com/berginj/glovebrand/internal/safeurl"
	"github.com/berginj/glovebrand/internal/sweeper"
)

// Runner starts the pipeline for one message. Implemented by the
// orchestrator coordinator; the debug surface uses it to run a job inline
// without going through the queue.
type Runner interface {
	Run(ctx context.Context, msg branding.Message) error
}

// Server wires HTTP handlers to the job store, queue, and sweeper.
type Server struct {
	router  chi.Router
	store   branding.JobStore
	queue   branding.Queue
	sweeper *sweeper.Sweeper
	runner  Runner
	idGen   branding.IDGenerator
	clock   branding.Clock
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The sweeper and
// runner may be nil; their debug endpoints then report 503.
func NewServer(
	store branding.JobStore,
	queue branding.Queue,
	sw *sweeper.Sweeper,
	runner Runner,
	idGen branding.IDGenerator,
	clock branding.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		store:   store,
		queue:   queue,
		sweeper: sw,
		runner:  runner,
		idGen:   idGen,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Post("/cancel", s.cancelJob)
				r.Post("/retry", s.retryJob)
			})
		})
		r.Route("/debug", func(r chi.Router) {
			r.Get("/queue", s.queueStats)
			r.Get("/deadletters", s.peekDeadLetters)
			r.Post("/requeue", s.requeueDeadLetters)
			r.Get("/jobs", s.listRecentJobs)
			r.Post("/start", s.startJob)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.queue.Stats(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitJobRequest struct {
	TeamURL string `json:"team_url"`
	Mode    string `json:"mode"`
}

type submitJobResponse struct {
	JobID  string `json:"job_id"`
	Cached bool   `json:"cached,omitempty"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.TeamURL == "" {
		writeError(w, http.StatusBadRequest, "team_url required")
		return
	}
	mode := branding.Mode(req.Mode)
	if mode == "" {
		mode = branding.ModeProposal
	}
	if !mode.Valid() {
		writeError(w, http.StatusBadRequest, "mode must be proposal or autofill")
		return
	}
	normalized, err := safeurl.Normalize(req.TeamURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if ttl := s.cfg.CacheTTL(); ttl > 0 {
		cached, err := s.store.LatestCompletedByTeamURL(r.Context(), normalized)
		if err == nil && s.clock.Now().Sub(cached.UpdatedAt) <= ttl {
			writeJSON(w, http.StatusOK, submitJobResponse{JobID: cached.ID, Cached: true})
			return
		}
		if err != nil && !errors.Is(err, branding.ErrJobNotFound) {
			writeError(w, http.StatusInternalServerError, "cache lookup failed")
			return
		}
	}

	jobID, err := s.enqueueJob(r.Context(), normalized, mode)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, submitJobResponse{JobID: jobID})
}

func (s *Server) enqueueJob(ctx context.Context, teamURL string, mode branding.Mode) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := branding.Job{
		ID:              jobID,
		TeamURL:         teamURL,
		Mode:            mode,
		Stage:           branding.StageReceived,
		CreatedAt:       now,
		UpdatedAt:       now,
		StageTimestamps: map[branding.Stage]time.Time{branding.StageReceived: now},
	}
	if err := s.store.Upsert(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg := branding.Message{JobID: jobID, TeamURL: teamURL, Mode: mode}
	if err := s.queue.Send(queueCtx, msg); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	if err := s.store.UpdateStage(ctx, jobID, branding.StageQueued, branding.StageUpdate{}); err != nil {
		return "", fmt.Errorf("mark job queued: %w", err)
	}
	return jobID, nil
}

type jobStatusResponse struct {
	JobID        string           `json:"job_id"`
	Stage        branding.Stage   `json:"stage"`
	Status       branding.Status  `json:"status"`
	Outputs      branding.Outputs `json:"outputs"`
	Error        string           `json:"error,omitempty"`
	ErrorDetails string           `json:"error_details,omitempty"`
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:        job.ID,
		Stage:        job.Stage,
		Status:       branding.StatusOf(job.Stage),
		Outputs:      job.Outputs,
		Error:        job.Error,
		ErrorDetails: job.ErrorDetails,
	})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	err := s.store.UpdateStage(r.Context(), jobID, branding.StageCanceled, branding.StageUpdate{})
	switch {
	case errors.Is(err, branding.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, branding.ErrTerminalStage):
		writeError(w, http.StatusConflict, "job already finished")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "stage": string(branding.StageCanceled)})
}

func (s *Server) retryJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Stage != branding.StageFailed {
		writeError(w, http.StatusConflict, "only failed jobs can be retried")
		return
	}
	now := s.clock.Now()
	retryCount := job.RetryCount + 1
	msg := branding.Message{JobID: job.ID, TeamURL: job.TeamURL, Mode: job.Mode, Attempt: retryCount}
	if err := s.queue.Send(r.Context(), msg); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("enqueue job: %v", err))
		return
	}
	// The job is terminal, so force the stage back to queued via Upsert.
	job.Stage = branding.StageQueued
	job.UpdatedAt = now
	job.RetryCount = retryCount
	job.LastRetryAt = &now
	job.Error = ""
	job.ErrorDetails = ""
	if job.StageTimestamps == nil {
		job.StageTimestamps = map[branding.Stage]time.Time{}
	}
	job.StageTimestamps[branding.StageQueued] = now
	if err := s.store.Upsert(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "retry_count": retryCount})
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) peekDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := s.queue.PeekDeadLetters(r.Context(), queryLimit(r, 25))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if letters == nil {
		letters = []branding.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dead_letters": letters})
}

func (s *Server) requeueDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeper not configured")
		return
	}
	moved, err := s.sweeper.RequeueDeadLetters(r.Context(), queryLimit(r, 25))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requeued": len(moved)})
}

// listRecentJobs reports the newest jobs plus, when a sweeper is wired, the
// retry and stall candidates it would act on at its next pass.
func (s *Server) listRecentJobs(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 25)
	jobs, err := s.store.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []branding.Job{}
	}
	resp := map[string]any{"jobs": jobs}
	if s.sweeper != nil {
		retry, stalled, err := s.sweeper.StaleJobs(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if retry == nil {
			retry = []branding.Job{}
		}
		if stalled == nil {
			stalled = []branding.Job{}
		}
		resp["stale"] = map[string]any{"retry": retry, "stalled": stalled}
	}
	writeJSON(w, http.StatusOK, resp)
}

type startJobRequest struct {
	JobID string `json:"job_id"`
}

// startJob runs the pipeline for an existing job inline, bypassing the
// queue. Debug-only: the request blocks until the job finishes.
func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "runner not configured")
		return
	}
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		writeError(w, http.StatusBadRequest, "job_id required")
		return
	}
	job, err := s.store.Get(r.Context(), req.JobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	runErr := s.runner.Run(r.Context(), branding.Message{JobID: job.ID, TeamURL: job.TeamURL, Mode: job.Mode})
	job, err = s.store.Get(r.Context(), req.JobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{"job_id": job.ID, "stage": job.Stage, "status": branding.StatusOf(job.Stage)}
	if runErr != nil {
		resp["error"] = runErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return def
	}
	return limit
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
