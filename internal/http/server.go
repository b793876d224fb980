package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finwatch/internal/backend"
	"finwatch/internal/log"
	"finwatch/internal/middleware/ratelimit"
	"finwatch/internal/middleware/security"
	"finwatch/internal/middleware/trace"
	"finwatch/internal/notify"
)

// Sessions hands out the per-user notification service.
type Sessions interface {
	Get(ctx context.Context, userID string) (*notify.Service, error)
	Logout(userID string) bool
}

type Options struct {
	Sessions           Sessions
	Checks             map[string]backend.Check
	JWTSecret          string
	RateLimitPerMinute int
	Logger             *log.Logger
	Clock              func() time.Time
}

// Server wraps http.Server with the middleware whose goroutines must be
// stopped on shutdown.
type Server struct {
	http.Server
	sessions     Sessions
	checks       map[string]backend.Check
	auth         *Authenticator
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	logger       *log.Logger
	events       *log.StructuredLogger
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:           addr,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 16,
		},
		sessions: opts.Sessions,
		checks:   opts.Checks,
		auth:     NewAuthenticator(opts.JWTSecret, opts.Clock),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			Clock:             opts.Clock,
		}),
		detector: security.NewDetector(logger),
		logger:   logger,
		events:   log.NewStructuredLogger(logger),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)
	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.tracer.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError(r, "route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldComponent, log.ComponentRateLimit,
				log.FieldClientIP, s.detector.ExtractClientIP(r))
			TooManyRequestsError(r).Write(w)
		}))
		r.Use(s.auth.Middleware)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Get("/unread-count", s.handleUnreadCount)
			r.Post("/read-all", s.handleMarkAllAsRead)
			r.Post("/clear-all", s.handleClearAll)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/urgent-only/toggle", s.handleToggleUrgentOnly)
			r.Put("/urgent-only", s.handleSetUrgentOnly)
			r.Post("/{id}/read", s.handleMarkAsRead)
			r.Post("/{id}/clear", s.handleClear)
		})
		r.Delete("/session", s.handleLogout)
	})
	return r
}

// Shutdown stops background middleware goroutines, then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// ListenAndServe treats a graceful shutdown as success.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
