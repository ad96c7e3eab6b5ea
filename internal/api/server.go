package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/metrics"
	"github.com/JakeFAU/degree-indexer/internal/policy/ratelimit"
	"github.com/JakeFAU/degree-indexer/internal/store"
)

// DefaultRequestTimeout bounds a request when Options leaves it unset. A
// scrape runs inside the request, so it is generous.
const DefaultRequestTimeout = 10 * time.Minute

// Scraper runs one indexing pass.
type Scraper interface {
	RunWithSummary(ctx context.Context) (crawler.AggregatedResult, crawler.RunSummary, error)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message  string  `json:"message"`
	ThreadID *string `json:"thread_id,omitempty"`
}

// ChatResponse is returned by an Assistant.
type ChatResponse struct {
	Response string   `json:"response"`
	ThreadID string   `json:"thread_id"`
	Sources  []string `json:"sources"`
	Status   string   `json:"status"`
}

// Assistant answers chat messages against the index.
type Assistant interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Options wires the server's collaborators. Nil fields disable the routes
// that need them.
type Options struct {
	Scraper           Scraper
	Assistant         Assistant
	History           store.RunRepository
	ChatLimiter       *ratelimit.Limiter
	ScrapeLimiter     *ratelimit.Limiter
	TrustForwardedFor bool
	APIKey            string
	RequestTimeout    time.Duration
	// Tracing wraps every request in an OpenTelemetry server span.
	Tracing bool
}

// Server wires HTTP handlers to the orchestrator and assistant.
type Server struct {
	router chi.Router
	opts   Options
	runs   *RunsHandler
	logger *zap.Logger
	now    func() time.Time
}

// NewServer constructs a Server with middleware and routes. An empty
// APIKey disables authentication.
func NewServer(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		opts:   opts,
		runs:   NewRunsHandler(opts.History, logger),
		logger: logger,
		now:    time.Now,
	}

	r := chi.NewRouter()
	if opts.Tracing {
		r.Use(otelhttp.NewMiddleware("api", otelhttp.WithSpanNameFormatter(spanName)))
	}
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.With(s.rateLimit("scrape", opts.ScrapeLimiter)).Post("/scrape", s.scrape)
		r.With(s.rateLimit("chat", opts.ChatLimiter)).Post("/chat", s.chat)
		r.Get("/runs", s.runs.ListRuns)
		r.Get("/runs/{run_id}", s.runs.GetRun)
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

type scrapeResponse struct {
	Message               string             `json:"message"`
	ScrapeDurationSeconds float64            `json:"scrape_duration_seconds"`
	Run                   crawler.RunSummary `json:"run"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	if s.opts.Scraper == nil {
		writeError(w, http.StatusServiceUnavailable, "scraper unavailable")
		return
	}
	start := s.now()
	_, summary, err := s.opts.Scraper.RunWithSummary(r.Context())
	elapsed := s.now().Sub(start)
	if err != nil {
		s.logger.Error("scrape failed", zap.String("run_id", summary.RunID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scrape failed: "+err.Error())
		return
	}
	s.logger.Info("scrape completed",
		zap.String("run_id", summary.RunID),
		zap.Duration("duration", elapsed),
	)
	writeJSON(w, http.StatusOK, scrapeResponse{
		Message:               summary.Message(),
		ScrapeDurationSeconds: math.Round(elapsed.Seconds()*100) / 100,
		Run:                   summary,
	})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.Assistant == nil {
		writeError(w, http.StatusNotImplemented, "chat assistant not configured")
		return
	}
	s.logger.Info("chat request", zap.String("message", messagePreview(req.Message)), zap.Stringp("thread_id", req.ThreadID))

	resp, err := s.opts.Assistant.Chat(r.Context(), req)
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":     "failed to process message",
			"thread_id": resp.ThreadID,
			"status":    "failed",
		})
		return
	}
	if resp.Status == "" {
		resp.Status = "completed"
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeChatRequest requires a non-empty string message and, when present,
// a string thread_id.
func decodeChatRequest(r *http.Request) (ChatRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return ChatRequest{}, errors.New("invalid JSON in request body")
	}
	var req ChatRequest
	if err := json.Unmarshal(raw["message"], &req.Message); err != nil || strings.TrimSpace(req.Message) == "" {
		return ChatRequest{}, errors.New("message is required and must be a string")
	}
	if tid, ok := raw["thread_id"]; ok && string(tid) != "null" {
		var threadID string
		if err := json.Unmarshal(tid, &threadID); err != nil {
			return ChatRequest{}, errors.New("thread_id must be a string")
		}
		req.ThreadID = &threadID
	}
	return req, nil
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

// messagePreview returns at most the first 50 runes of msg for logging.
func messagePreview(msg string) string {
	runes := []rune(msg)
	if len(runes) > 50 {
		return string(runes[:50])
	}
	return msg
}
