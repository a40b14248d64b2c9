// Package server exposes the retrieval engine over HTTP. Routes follow the
// gin handler/dto split: request DTOs validate with binding tags, failures
// share one error envelope.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/config"
	"github.com/soundprediction/go-reliquary/pkg/server/handlers"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// Server wraps a gin engine around a retrieval client.
type Server struct {
	cfg    *config.Config
	engine reliquary.Reliquary
	logger *slog.Logger
	router *gin.Engine
	http   *http.Server
}

// New creates a server for the given engine. Routes are registered by Setup.
func New(cfg *config.Config, engine reliquary.Reliquary, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, engine: engine, logger: logger}
}

// Setup configures the gin router and registers all routes.
func (s *Server) Setup() {
	switch s.cfg.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(s.cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	health := handlers.NewHealthHandler(s.engine)
	retrieve := handlers.NewRetrieveHandler(s.engine)
	rebuild := handlers.NewRebuildHandler(s.engine)

	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)

	api := router.Group("/api/v1")
	{
		api.POST("/retrieve", retrieve.Retrieve)
		api.POST("/answer", retrieve.Answer)
		api.POST("/rebuild", rebuild.Rebuild)
		api.GET("/stats", rebuild.Stats)
	}

	s.router = router
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Start begins serving and blocks until the listener closes. A closed
// listener after Stop is not an error.
func (s *Server) Start() error {
	if s.http == nil {
		s.Setup()
	}
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the configured router for tests and embedding.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		s.Setup()
	}
	return s.router
}

// requestLogger tags every request context as HTTP-sourced and logs the
// outcome once the handler chain completes.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := context.WithValue(c.Request.Context(), types.ContextKeyRequestSource, "http")
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		s.logger.InfoContext(ctx, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}
