package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/compozy/transcripts/pkg/config"
	"github.com/compozy/transcripts/pkg/logger"
)

const (
	httpReadHeaderTimeout  = 10 * time.Second
	httpReadTimeout        = 30 * time.Second
	httpWriteTimeout       = 5 * time.Minute
	httpIdleTimeout        = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	hostAny                = "0.0.0.0"
	hostLoopback           = "127.0.0.1"
)

type Server struct {
	cfg        config.ServerConfig
	deps       *Dependencies
	router     *gin.Engine
	metrics    *httpMetrics
	httpServer *http.Server
	now        func() time.Time
}

// NewServer validates deps and builds the router. It does not listen.
func NewServer(ctx context.Context, cfg *config.ServerConfig, deps *Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     *cfg,
		deps:    deps,
		metrics: newHTTPMetrics(ctx, deps.Monitoring, deps.Cache),
		now:     time.Now,
	}
	s.router = s.buildRouter(ctx)
	return s, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then drains
// in-flight requests for at most the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.FromContext(ctx)
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		WriteTimeout:      httpWriteTimeout,
		IdleTimeout:       httpIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "url", fmt.Sprintf("http://%s:%d", friendlyHost(s.cfg.Host), s.cfg.Port))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}
	return s.shutdown(ctx)
}

func (s *Server) shutdown(ctx context.Context) error {
	log := logger.FromContext(ctx)
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	log.Info("Shutting down HTTP server", "timeout", timeout)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if s.deps.Monitoring != nil {
		if err := s.deps.Monitoring.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to shut down monitoring", "error", err)
		}
	}
	log.Info("HTTP server stopped")
	return nil
}

func friendlyHost(h string) string {
	if h == hostAny || h == "::" || h == "" {
		return hostLoopback
	}
	return h
}
