// Package api serves the OpenAI compatible HTTP surface of the proxy.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CursorProxyAPI/internal/config"
	"github.com/router-for-me/CursorProxyAPI/internal/logging"
	"github.com/router-for-me/CursorProxyAPI/internal/metrics"
	"github.com/router-for-me/CursorProxyAPI/internal/runtime/executor"
	"github.com/router-for-me/CursorProxyAPI/internal/stream"
	"github.com/router-for-me/CursorProxyAPI/internal/usage"
	log "github.com/sirupsen/logrus"
)

// Upstream produces the text fragments of one chat completion.
type Upstream interface {
	Stream(ctx context.Context, model string, payload []byte) (stream.Source[string], error)
}

// UpstreamFactory builds the upstream for a configuration snapshot.
type UpstreamFactory func(cfg *config.Config) Upstream

// snapshot pairs a configuration with the upstream built from it. Requests
// load one snapshot at start and use it throughout.
type snapshot struct {
	cfg      *config.Config
	upstream Upstream
}

// Server is the gin based HTTP server.
type Server struct {
	engine      *gin.Engine
	httpServer  *http.Server
	current     atomic.Pointer[snapshot]
	newUpstream UpstreamFactory
	metrics     *metrics.Metrics
	estimator   *usage.Estimator
}

// ServerOption customises a Server.
type ServerOption func(*Server)

// WithUpstreamFactory replaces the Cursor executor, mostly for tests.
func WithUpstreamFactory(factory UpstreamFactory) ServerOption {
	return func(s *Server) { s.newUpstream = factory }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer builds the router for cfg.
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		newUpstream: func(cfg *config.Config) Upstream { return executor.NewCursorExecutor(cfg) },
		estimator:   usage.NewEstimator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil && cfg.Metrics.Enabled {
		s.metrics = metrics.New()
	}
	s.current.Store(&snapshot{cfg: cfg, upstream: s.newUpstream(cfg)})

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	if s.metrics != nil {
		engine.Use(s.metricsMiddleware())
	}
	s.engine = engine
	s.setupRoutes(cfg)

	s.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           engine,
		ReadHeaderTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(cfg *config.Config) {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.engine.GET(cfg.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.engine.Group("/v1")
	v1.Use(AuthMiddleware(s.config))
	{
		v1.GET("/models", s.handleModels)
		v1.POST("/chat/completions", s.handleChatCompletions)
	}
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// UpdateConfig swaps in a reloaded configuration. Requests already running
// keep the snapshot they started with. Listen address and metrics routing only
// change on restart.
func (s *Server) UpdateConfig(cfg *config.Config) {
	prev := s.current.Swap(&snapshot{cfg: cfg, upstream: s.newUpstream(cfg)})
	if prev != nil && prev.cfg.Address() != cfg.Address() {
		log.Warnf("server: listen address change to %s requires a restart", cfg.Address())
	}
	if err := logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("server: apply logging configuration: %v", err)
	}
	log.Infof("server: configuration updated (max-retries=%d, models=%d)", cfg.MaxRetries, len(cfg.Models))
}

func (s *Server) config() *config.Config { return s.current.Load().cfg }

// Start serves until Stop is called.
func (s *Server) Start() error {
	log.Infof("server: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(route, c.Writer.Status(), time.Since(start))
	}
}
