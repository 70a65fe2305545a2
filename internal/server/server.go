package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mir00r/telemetry-demo/internal/config"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

const defaultShutdownTimeout = 30 * time.Second

// Server runs the demo HTTP surface until its context ends, then drains
// in-flight requests within the shutdown timeout.
type Server struct {
	httpServer      *http.Server
	config          config.ServerConfig
	shutdownTimeout time.Duration
	logger          *logger.Logger
}

// New creates a server for handler. With H2C enabled the handler also speaks
// cleartext HTTP/2, both via prior knowledge and via the Upgrade header.
func New(cfg config.ServerConfig, handler http.Handler, log *logger.Logger) (*Server, error) {
	if cfg.H2C {
		h2s := &http2.Server{
			IdleTimeout: cfg.IdleTimeout,
		}
		handler = h2c.NewHandler(handler, h2s)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &Server{
		httpServer:      httpServer,
		config:          cfg,
		shutdownTimeout: shutdownTimeout,
		logger:          log.WithField("component", "http_server"),
	}, nil
}

// Run listens on the configured port and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(map[string]interface{}{
			"addr":        listener.Addr().String(),
			"server_name": s.config.ServerName,
			"h2c":         s.config.H2C,
		}).Info("Server starting")

		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("Server stopped gracefully")
	return nil
}
