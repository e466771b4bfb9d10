package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/tracker"
)

// Config holds what the server needs.
type Config struct {
	Addr           string
	Tracker        *tracker.Tracker
	Logger         *log.Logger
	AllowedOrigins []string
	RateLimit      ratelimit.Config
	// Ready reports whether the persistence backend answers. Optional.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	tracker *tracker.Tracker
	logger  *log.Logger
	limiter *ratelimit.Limiter
	trace   *trace.Middleware
	ready   func(ctx context.Context) error
	started time.Time
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		tracker: cfg.Tracker,
		logger:  logger,
		limiter: ratelimit.NewLimiter(cfg.RateLimit),
		trace:   trace.NewMiddleware(logger, clientIP),
		ready:   cfg.Ready,
		started: time.Now(),
	}
	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.trace.Handler)
	r.Use(chimiddleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware(clientIP, func(w http.ResponseWriter, _ *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
		}))

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Patch("/{id}", s.handleEditTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})
		r.Post("/undo", s.handleUndo)

		r.Get("/summary", s.handleSummary)
		r.Get("/charts/categories", s.handleCategoryChart)
		r.Get("/charts/balance", s.handleBalanceChart)

		r.Get("/view", s.handleView)
		r.Put("/filter", s.handleChangeFilter)

		r.Get("/theme", s.handleTheme)
		r.Post("/theme/toggle", s.handleToggleTheme)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusNotFound, "not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})
	return r
}

func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	})
}

// clientIP returns the host part of RemoteAddr, which RealIP has already
// rewritten from proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Shutdown stops accepting requests and ends background work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}
