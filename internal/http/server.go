package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"bilancio/internal/chart"
	"bilancio/internal/log"
	"bilancio/internal/metrics"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	appweb "bilancio/web"
)

// maxBodyBytes bounds form posts; the largest is the 24 budget fields.
const maxBodyBytes = 64 << 10

// Options carries what the server needs from the outside. Metrics may be
// nil, which disables collection and the /metrics endpoint.
type Options struct {
	Logger             *log.Logger
	Metrics            *metrics.Metrics
	Renderer           *chart.Renderer
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	templates    *template.Template
	logger       *log.Logger
	metrics      *metrics.Metrics
	renderer     *chart.Renderer
	limiter      *ratelimit.Limiter
	// imageLimiter counts GET /chart.png separately from the form posts.
	imageLimiter *ratelimit.Limiter
	sanitizer    *bluemonday.Policy
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, opts Options) (*Server, error) {
	if opts.Renderer == nil {
		return nil, errors.New("server requires a chart renderer")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}

	limitCfg := ratelimit.DefaultConfig()
	limitCfg.Limit = opts.RateLimitPerMinute
	imageCfg := limitCfg
	imageCfg.Methods = []string{http.MethodGet}

	s := &Server{
		templates:    t,
		logger:       logger,
		metrics:      opts.Metrics,
		renderer:     opts.Renderer,
		limiter:      ratelimit.NewLimiter(limitCfg),
		imageLimiter: ratelimit.NewLimiter(imageCfg),
		sanitizer:    feedbackPolicy(),
	}

	// Recoverer sits inside logging and metrics so a panic is still
	// recorded as a 500.
	r := chi.NewRouter()
	r.Use(
		security.Headers(security.DefaultHeadersConfig()),
		log.Middleware(logger, requestID, extractClientIP),
	)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware(routePattern))
	}
	r.Use(
		chimw.Recoverer,
		chimw.RequestSize(maxBodyBytes),
		s.limiter.Middleware(extractClientIP, s.onRateLimited),
	)

	r.With(security.StaticAssetMiddleware(3600)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Get("/", s.handleIndex)
	r.Post("/username", s.handleUsername)
	r.Post("/chart", s.handleChartFragment)
	r.Get("/chart.json", s.handleChartJSON)
	r.With(s.imageLimiter.Middleware(extractClientIP, s.onRateLimited)).
		Get("/chart.png", s.handleChartPNG)
	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError(allowedMethods(r)).Write(w)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Page not found").Write(w)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
	return s.Server.Shutdown(ctx)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request, clientIP string) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).
		WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, clientIP,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
	NewHTMXResponse().
		TriggerNotification(NotificationWarning, "Too many requests, please wait a minute.", 5000).
		WriteHeaders(w)
}

// requestID reuses a caller-supplied id when it is a UUID, otherwise
// mints one.
func requestID(r *http.Request) string {
	if id := r.Header.Get(log.RequestIDHeader); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func allowedMethods(r *http.Request) string {
	switch r.URL.Path {
	case "/username", "/chart":
		return http.MethodPost
	default:
		return http.MethodGet
	}
}
