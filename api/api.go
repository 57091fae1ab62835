package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/xraph/processes/orchestrator"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

const (
	defaultListLimit = 10
	maxListLimit     = 1000
)

// API serves the OGC API - Processes routes for one Orchestrator.
type API struct {
	orch    *orchestrator.Orchestrator
	logger  *slog.Logger
	baseURL string
	title   string
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger for request logs.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithBaseURL sets the prefix of every link and Location header, e.g.
// "https://example.com/ogc". By default links are host-relative.
func WithBaseURL(u string) Option {
	return func(a *API) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithTitle sets the landing page title.
func WithTitle(t string) Option {
	return func(a *API) { a.title = t }
}

// New creates an API over the orchestrator.
func New(orch *orchestrator.Orchestrator, opts ...Option) *API {
	a := &API{
		orch:   orch,
		logger: slog.Default(),
		title:  "processes",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes and
// the request middleware.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, a.logRequests, middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeException(w, http.StatusNotFound, typeNotFound, "Not found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeException(w, http.StatusMethodNotAllowed, typeNotAllowed, "Method not allowed", r.Method+" is not supported on "+r.URL.Path)
	})
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes into the given chi router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/", a.landing)
	r.Get("/conformance", a.conformance)

	r.Route("/processes", func(r chi.Router) {
		r.Get("/", a.listProcesses)
		r.Get("/{processID}", a.getProcess)
		r.Post("/{processID}/execution", a.execute)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", a.listJobs)
		r.Get("/{jobID}", a.getJob)
		r.Delete("/{jobID}", a.dismissJob)
		r.Get("/{jobID}/results", a.getResults)
	})
}

// ──────────────────────────────────────────────────
// Request middleware
// ──────────────────────────────────────────────────

type requestIDKey struct{}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// requestID propagates the caller's X-Request-Id or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, rid)))
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		a.logger.LogAttrs(r.Context(), level, "http request",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// link builds an absolute or host-relative href.
func (a *API) link(path string) string { return a.baseURL + path }
