// Package http exposes rules, rates and project summaries as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"worklog/internal/core"
	"worklog/internal/engine"
	"worklog/internal/log"
	"worklog/internal/middleware/ratelimit"
	"worklog/internal/middleware/security"
	"worklog/internal/middleware/trace"
)

type (
	RuleAPI interface {
		List(ctx context.Context, f core.RuleFilter) ([]core.ClassificationRule, error)
		Upsert(ctx context.Context, auth core.AuthContext, appName string, in core.RuleInput) (core.ClassificationRule, error)
		Remove(ctx context.Context, auth core.AuthContext, appName string) error
	}

	SummaryAPI interface {
		ProjectSummary(ctx context.Context, projectID string) (engine.ProjectSummary, error)
		TimeLapse(ctx context.Context, projectID, taskID string) (map[string]engine.TimeLapseGroup, error)
		Aggregate(ctx context.Context, f core.EntryFilter, groupBy ...engine.Dimension) ([]core.AggregateResult, error)
	}

	RateAPI interface {
		List(ctx context.Context, projectID string) ([]core.MemberRate, error)
		Set(ctx context.Context, auth core.AuthContext, projectID, username string, ratePerHour float64) (core.MemberRate, error)
	}

	// Pinger backs the readiness check.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Deps are the collaborators the server routes to. Health may be nil.
type Deps struct {
	Rules              RuleAPI
	Summaries          SummaryAPI
	Rates              RateAPI
	Health             Pinger
	Logger             *log.Logger
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	rules     RuleAPI
	summaries SummaryAPI
	rates     RateAPI
	health    Pinger
	validate  *validator.Validate
	logger    *log.Logger
	tracer    *trace.Middleware
	limiter   *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	clientIP := security.NewClientIPResolver()
	s := &Server{
		rules:     d.Rules,
		summaries: d.Summaries,
		rates:     d.Rates,
		health:    d.Health,
		validate:  validator.New(),
		logger:    logger,
		tracer:    trace.NewMiddleware(logger, clientIP.ClientIP),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: d.RateLimitPerMinute}),
	}

	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware(clientIP.ClientIP, s.handleRateLimited))

		r.Route("/classification-rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Patch("/{appName}", s.handleUpsertRule)
			r.Delete("/{appName}", s.handleDeleteRule)
		})

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/summary", s.handleProjectSummary)
			r.Get("/aggregate", s.handleAggregate)
			r.Get("/tasks/{taskID}/timelapse", s.handleTimeLapse)
			r.Get("/rates", s.handleListRates)
			r.Put("/rates/{username}", s.handleSetRate)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background helpers and drains the HTTP server once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics exposes the request counters collected by the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"requests": s.tracer.GetMetrics().TotalRequests,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "storage unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded, try again later"})
}
