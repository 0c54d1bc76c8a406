// Package api exposes a small read-only HTTP surface over the running
// scan loop: liveness, loop state, and the latest scan result.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chartink-scanner-bot/config"
	"chartink-scanner-bot/internal/orchestrator"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// StatusSource reports the scan loop state. Satisfied by *orchestrator.Orchestrator.
type StatusSource interface {
	Snapshot() orchestrator.Snapshot
}

// Server represents the status HTTP server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	source     StatusSource
	config     config.ServerConfig
	logger     zerolog.Logger
	startedAt  time.Time
}

// NewServer creates the status server with routes configured
func NewServer(cfg config.ServerConfig, source StatusSource, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:    router,
		source:    source,
		config:    cfg,
		logger:    logger.With().Str("component", "api").Logger(),
		startedAt: time.Now(),
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/results", s.handleResults)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Snapshot())
}

func (s *Server) handleResults(c *gin.Context) {
	snap := s.source.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"fetched_at": snap.LastScanAt,
		"row_count":  snap.LastRowCount,
		"rows":       snap.LastResult,
	})
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("status server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start status server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		s.logger.Info().Msg("status server shutting down")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
