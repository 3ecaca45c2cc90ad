// Package server exposes the grading pipeline over HTTP as JSON endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coach "github.com/jamesainslie/go-writecoach"
	"github.com/jamesainslie/go-writecoach/dataset"
	"github.com/jamesainslie/go-writecoach/feedback"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// AssessPath grades an essay end to end.
const AssessPath = "/assess"

// AssessRequest is the request body of AssessPath.
type AssessRequest struct {
	EssayText string `json:"essay_text"`
}

// AssessResponse is the response body of AssessPath.
type AssessResponse struct {
	Status        coach.Status `json:"status"`
	Record        coach.Record `json:"record"`
	FeedbackError string       `json:"feedback_error,omitempty"`
	Location      string       `json:"location,omitempty"`
	SaveError     string       `json:"save_error,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to a Coach and its collaborators.
type Server struct {
	coach    *coach.Coach
	scorer   coach.Scorer
	feedback coach.FeedbackGenerator
	maxBody  int64
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithMaxBodyBytes caps request bodies (default: 1 MiB).
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// New returns a server. scorer and gen serve the single-step endpoints and
// should be the ones c was built with.
func New(c *coach.Coach, scorer coach.Scorer, gen coach.FeedbackGenerator, opts ...Option) *Server {
	s := &Server{
		coach:    c,
		scorer:   scorer,
		feedback: gen,
		maxBody:  1 << 20,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.Handle("GET /health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.Handle("POST "+scoring.PredictPath, s.instrument("predict_scores", http.HandlerFunc(s.handlePredict)))
	s.mux.Handle("POST "+feedback.GeneratePath, s.instrument("generate_feedback", http.HandlerFunc(s.handleFeedback)))
	s.mux.Handle("POST "+AssessPath, s.instrument("assess", http.HandlerFunc(s.handleAssess)))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		clog.FromContext(ctx).With("addr", addr).Info("Serving")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument tags the request with an id, logs it and records metrics.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		log := clog.FromContext(r.Context()).With("request_id", id).With("route", route)
		ctx := clog.WithLogger(r.Context(), log)

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		elapsed := time.Since(start)

		requestCounter.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		log.With("code", rec.code).With("duration", elapsed).Info("Handled request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req scoring.PredictRequest
	if !s.decode(w, r, &req) {
		return
	}

	scores, err := s.scorer.PredictScores(r.Context(), dataset.Normalize(req.EssayText))
	if err != nil {
		clog.FromContext(r.Context()).With("error", err.Error()).Error("Scoring failed")
		writeError(w, http.StatusBadGateway, "scoring failed")
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedback.GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}

	text := s.feedback.GenerateFeedback(r.Context(), req.EssayText, req.Scores)
	if feedback.IsError(text) {
		feedbackFailures.Inc()
	}
	writeJSON(w, http.StatusOK, feedback.GenerateResponse{Feedback: text})
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if !s.decode(w, r, &req) {
		return
	}

	a, err := s.coach.Assess(r.Context(), req.EssayText)
	switch {
	case errors.Is(err, coach.ErrNoInput):
		assessmentCounter.WithLabelValues("no_input").Inc()
		writeError(w, http.StatusBadRequest, "no essay text")
		return
	case err != nil:
		assessmentCounter.WithLabelValues("failed").Inc()
		clog.FromContext(r.Context()).With("error", err.Error()).Error("Assessment failed")
		writeError(w, http.StatusBadGateway, "scoring failed")
		return
	}

	assessmentCounter.WithLabelValues(string(a.Status)).Inc()
	if a.Status == coach.StatusPartial {
		feedbackFailures.Inc()
	}
	resp := AssessResponse{
		Status:        a.Status,
		Record:        a.Record,
		FeedbackError: a.FeedbackError,
		Location:      a.Location,
	}
	if a.SaveErr != nil {
		resp.SaveError = a.SaveErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
