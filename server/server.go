package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/observability"
	"github.com/kbukum/boundguard/queue"
	"github.com/kbukum/boundguard/resilience"
	"github.com/kbukum/boundguard/server/endpoint"
	"github.com/kbukum/boundguard/server/middleware"
	"github.com/kbukum/boundguard/status"
)

// MaxJobBytes caps the body accepted by POST /jobs.
const MaxJobBytes = 1 << 20

// Server is the status HTTP server backed by Gin.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     Config
	log        *logger.Logger

	mu    sync.Mutex
	bound string
}

// New creates a new Server. The Gin engine is created but no middleware is
// applied yet.
func New(cfg Config, log *logger.Logger) *Server {
	// Set Gin mode based on global zerolog level.
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		engine:     engine,
		config:     cfg,
		log:        logger.OrDefault(log, "server"),
	}
}

// Engine returns the underlying Gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start binds the port and begins serving. It returns once the listener is
// bound so the caller knows the port is ready; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.bound = listener.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields("addr", s.Addr()))
	return nil
}

// Stop gracefully shuts down the server within ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown error", logger.Fields(logger.FieldError, err.Error()))
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound != "" {
		return s.bound
	}
	return s.httpServer.Addr
}

// ApplyMiddleware applies recovery, request-ID and request logging, then
// the rate limit when limiter is non-nil.
func (s *Server) ApplyMiddleware(limiter *resilience.RateLimiter, metrics *observability.Metrics) {
	s.engine.Use(middleware.Recovery(s.log))
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.RequestLogger(s.log))
	if limiter != nil {
		s.engine.Use(middleware.RateLimit(middleware.RateLimitConfig{Limiter: limiter, Metrics: metrics}))
	}
}

// RegisterEndpoints registers the probe, status, metrics and control
// endpoints. A nil gatherer uses the default prometheus registry; a nil
// shutdown leaves /shutdown unregistered.
func (s *Server) RegisterEndpoints(reg *status.Registry, gatherer prometheus.Gatherer, shutdown func()) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.engine.GET("/health", endpoint.Health(reg))
	s.engine.GET("/alive", endpoint.Liveness(reg.Service()))
	s.engine.GET("/ready", endpoint.Readiness(reg))
	s.engine.GET("/status", endpoint.Status(reg))
	s.engine.GET("/metrics", endpoint.Metrics(gatherer))
	s.engine.GET("/version", endpoint.Version())
	if shutdown != nil {
		s.engine.POST("/shutdown", endpoint.Shutdown(shutdown))
	}
}

// RegisterEnqueue registers POST /jobs, which pushes the request body onto p
// after validate accepts it.
func (s *Server) RegisterEnqueue(p queue.Pusher, validate func([]byte) error) {
	s.engine.POST("/jobs", endpoint.Enqueue(p, validate, MaxJobBytes))
}
