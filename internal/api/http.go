package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aridsondez/monjobs/internal/queue"
	"github.com/aridsondez/monjobs/internal/queue/store"
)

// Acknowledger is the part of ack.Service the HTTP layer needs.
type Acknowledger interface {
	Acknowledge(ctx context.Context, q queue.QueueID, id queue.JobID, a queue.Acknowledgment) (queue.AckResult, error)
	Lookup(ctx context.Context, q queue.QueueID, id queue.JobID) (queue.Job, error)
}

const defaultTimeout = 5 * time.Second

type Server struct {
	svc     Acknowledger
	timeout time.Duration
}

func NewServer(addr string, svc Acknowledger, timeout time.Duration) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: NewHandler(svc, timeout),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ack: POST /v1/queues/{queue}/jobs/{id}:ack
		r.Post("/queues/{queue}/jobs/{id}:ack", s.handleAck)

		// inspect: GET /v1/queues/{queue}/jobs/{id}
		r.Get("/queues/{queue}/jobs/{id}", s.handleGet)
	})

	return r
}

// NewHandler returns the routes for svc with the given request timeout.
func NewHandler(svc Acknowledger, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return (&Server{svc: svc, timeout: timeout}).Routes()
}

type ackRequest struct {
	Acknowledgment queue.Acknowledgment `json:"acknowledgment"`
}

type ackResponse struct {
	Success bool `json:"success"`
}

// ---------- Handlers ----------

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	q, id, ok := pathIDs(w, r)
	if !ok {
		return
	}

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}

	res, err := s.svc.Acknowledge(r.Context(), q, id, req.Acknowledgment)
	if err != nil {
		backendError(w, "ack failed", err)
		return
	}
	if !res.Success {
		// already acknowledged, other queue or unknown job
		writeJSON(w, http.StatusConflict, &ackResponse{Success: false})
		return
	}
	writeJSON(w, http.StatusOK, &ackResponse{Success: true})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	q, id, ok := pathIDs(w, r)
	if !ok {
		return
	}

	job, err := s.svc.Lookup(r.Context(), q, id)
	if errors.Is(err, store.ErrJobNotFound) {
		httpError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		backendError(w, "lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ---------- helpers ----------

func pathIDs(w http.ResponseWriter, r *http.Request) (queue.QueueID, queue.JobID, bool) {
	rawQueue, err := pathParam(r, "queue")
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid queue: %v", err)
		return queue.Empty(), "", false
	}
	q, err := queue.Parse(rawQueue)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid queue: %v", err)
		return queue.Empty(), "", false
	}

	rawID, err := pathParam(r, "id")
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid job id: %v", err)
		return queue.Empty(), "", false
	}
	id, err := queue.ParseJobID(rawID)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid job id: %v", err)
		return queue.Empty(), "", false
	}
	return q, id, true
}

// pathParam returns the decoded URL parameter. chi matches on RawPath when the
// request carries one and on the already decoded Path otherwise, so only the
// former needs unescaping.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func backendError(w http.ResponseWriter, prefix string, err error) {
	switch {
	case errors.Is(err, queue.ErrInvalidIdentifier):
		httpError(w, http.StatusBadRequest, "%s: %v", prefix, err)
	case errors.Is(err, store.ErrBackendUnavailable):
		httpError(w, http.StatusServiceUnavailable, "%s: %v", prefix, err)
	default:
		httpError(w, http.StatusInternalServerError, "%s: %v", prefix, err)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
