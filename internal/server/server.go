// Package server exposes poll results over HTTP.
//
// GET / returns the JSON status of every configured host, cached for a short
// TTL. GET /health reports liveness and the number of open connections.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rileyhilliard/gpustat/internal/logger"
	"github.com/rileyhilliard/gpustat/internal/monitor"
)

// ShutdownTimeout bounds how long in-flight requests get to finish.
const ShutdownTimeout = 10 * time.Second

// Poller is the part of monitor.Poller the server needs.
type Poller interface {
	Poll(ctx context.Context, hosts []string, cred monitor.Credential) monitor.PollResult
}

// Options configures a Server.
type Options struct {
	Hosts       []string
	Credential  monitor.Credential
	CacheTTL    time.Duration
	Debug       bool
	CORSOrigins []string
	Logger      logger.Logger
}

// Server serves the status endpoint.
type Server struct {
	engine *gin.Engine
	cache  *statusCache
	log    logger.Logger
}

// New builds the router. connections may be nil.
func New(poller Poller, connections ConnectionCounter, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.NewEnvLogger("[server]")
	}

	hosts := append([]string(nil), opts.Hosts...)
	cache := newStatusCache(opts.CacheTTL, func(ctx context.Context) monitor.PollResult {
		return poller.Poll(ctx, hosts, opts.Credential)
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log))
	if opts.Debug {
		engine.Use(CORS(opts.CORSOrigins))
	}

	s := &Server{engine: engine, cache: cache, log: log}
	setupRoutes(engine, cache, connections)
	return s
}

func setupRoutes(engine *gin.Engine, cache *statusCache, connections ConnectionCounter) {
	status := &statusHandler{cache: cache}
	engine.GET("/", status.Get)

	health := &healthHandler{connections: connections}
	engine.GET("/health", health.Check)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}
