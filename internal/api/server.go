package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
	"github.com/JakeFAU/crawlqueue/internal/metrics"
	"github.com/JakeFAU/crawlqueue/internal/queue"
)

// Queues is the slice of the queue store the API reads and controls.
type Queues interface {
	Snapshot(ctx context.Context, name string) (queue.Snapshot, error)
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
}

// Results reads and clears stored crawl results.
type Results interface {
	List(ctx context.Context, queueName string) ([]crawler.Result, error)
	Clear(ctx context.Context, queueName string) error
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger func(ctx context.Context) error

// Server wires HTTP handlers to the queue and result stores.
type Server struct {
	router  chi.Router
	queues  Queues
	results Results
	ready   Pinger
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. results and ready may be nil.
func NewServer(queues Queues, results Results, ready Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		queues:  queues,
		results: results,
		ready:   ready,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/queues/{name}", func(r chi.Router) {
		r.Get("/", s.getQueue)
		r.Delete("/", s.removeQueue)
		r.Post("/stop", s.stopQueue)
		r.Get("/results", s.getResults)
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
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type queueCounts struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
}

type queueResponse struct {
	Name     string         `json:"name"`
	Snapshot queue.Snapshot `json:"snapshot"`
	Counts   queueCounts    `json:"counts"`
}

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap, ok := s.snapshot(w, r, name)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, queueResponse{
		Name:     name,
		Snapshot: snap,
		Counts: queueCounts{
			Queued:     len(snap.Queue.Queued),
			Processing: len(snap.Queue.Processing),
			Done:       len(snap.Queue.Done),
		},
	})
}

func (s *Server) stopQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.snapshot(w, r, name); !ok {
		return
	}
	if err := s.queues.Stop(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("queue stopped via API", zap.String("queue", name))
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "status": string(queue.StatusInactive)})
}

func (s *Server) removeQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.queues.Remove(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.results != nil && r.URL.Query().Get("results") == "true" {
		if err := s.results.Clear(r.Context(), name); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.logger.Info("queue removed via API", zap.String("queue", name))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusNotFound, "result storage not configured")
		return
	}
	name := chi.URLParam(r, "name")
	list, err := s.results.List(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "results": list})
}

// snapshot loads a queue and writes a 404 when it has never been registered.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request, name string) (queue.Snapshot, bool) {
	snap, err := s.queues.Snapshot(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return queue.Snapshot{}, false
	}
	if snap.State.Status == "" && len(snap.Queue.Queued)+len(snap.Queue.Processing)+len(snap.Queue.Done) == 0 {
		writeError(w, http.StatusNotFound, "queue not found")
		return queue.Snapshot{}, false
	}
	return snap, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
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
