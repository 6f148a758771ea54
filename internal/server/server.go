// Package server exposes the request pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reqpipe/reqpipe/internal/config"
	"github.com/reqpipe/reqpipe/internal/observability"
	"github.com/reqpipe/reqpipe/internal/pipeline"
)

// ginModeOnce ensures gin.SetMode is called once.
var ginModeOnce sync.Once

// Server serves pipeline requests over HTTP.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	executor   *pipeline.Executor
	config     *config.ServerConfig
	logger     observability.Logger

	mu      sync.Mutex
	running bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger observability.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the HTTP server around the pipeline executor.
func NewServer(cfg *config.ServerConfig, executor *pipeline.Executor, opts ...ServerOption) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:   gin.New(),
		executor: executor,
		config:   cfg,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(RequestID())
	s.engine.Use(Recovery(s.logger))
	s.engine.Use(AccessLog(s.logger))
	if cfg.RateLimit.Enabled {
		s.engine.Use(RateLimit(cfg.RateLimit, s.logger))
	}
	s.engine.Use(Breaker("edge", s.logger))

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.Any("/api/*resource", s.handleRequest)

	return s
}

// Handler returns the HTTP handler, used in tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the server until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("addr", s.config.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	s.logger.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
