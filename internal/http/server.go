package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"eiademand/internal/cache"
	"eiademand/internal/core"
	applog "eiademand/internal/log"
	"eiademand/internal/middleware/ratelimit"
	"eiademand/internal/middleware/security"
	"eiademand/internal/middleware/trace"
	"eiademand/internal/services"
)

// DemandBuilder is the service surface the HTTP layer depends on.
type DemandBuilder interface {
	Build(ctx context.Context, req services.Request) (services.Report, error)
	Datasets() []core.Dataset
}

// cacheReporter is optionally implemented by a DemandBuilder.
type cacheReporter interface {
	CacheStats() cache.Stats
}

// appMetrics holds counters that outlive a single request.
type appMetrics struct {
	uptime time.Time
}

type Server struct {
	http.Server
	builder  DemandBuilder
	defaults Defaults
	logger   *applog.Logger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// Options configures NewServer.
type Options struct {
	Defaults           Defaults
	RateLimitPerMinute int
	// TrustedProxies are CIDRs whose X-Forwarded-For header is believed.
	TrustedProxies     []string
	Logger             *applog.Logger
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
}

// NewServer wires routes and middleware around the demand service and returns
// a ready-to-run server.
func NewServer(addr string, builder DemandBuilder, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	rl := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rl.RequestsPerMinute = opts.RateLimitPerMinute
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       opts.IdleTimeout,
		},
		builder:          builder,
		defaults:         opts.Defaults,
		logger:           logger,
		securityDetector: security.NewDetector(logger),
		rateLimiter:      ratelimit.NewLimiter(rl),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, applog.FieldError, err)
		}
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)

	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)

	mux.Handle("/api/datasets", limited(http.HandlerFunc(s.handleDatasets)))
	mux.Handle("/api/demand", limited(http.HandlerFunc(s.handleDemand)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Handler = s.traceMiddleware.Middleware(
		headers.Middleware(
			s.securityDetector.Middleware(mux)))

	return s
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
