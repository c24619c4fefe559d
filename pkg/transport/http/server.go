package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akessl/schleuse/pkg/transport"
)

// Server wraps an http.Server with the transport adapter and manages
// the full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger

	// Wrappers are HTTP-level middlewares (auth, metrics) applied around
	// the adapter, outermost first.
	Wrappers []func(http.Handler) http.Handler

	// ExtraRoutes registers additional handlers (metrics endpoint) on the
	// server's top-level mux.
	ExtraRoutes map[string]http.Handler
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithReadTimeout sets the request read deadline. The write side stays
// unbounded because generation streams have no fixed duration.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ReadTimeout = d }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithWrapper adds an HTTP-level middleware around the adapter.
// Wrappers are applied in registration order, first one outermost.
func WithWrapper(w func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.config.Wrappers = append(s.config.Wrappers, w) }
}

// WithRoute registers an extra handler on the server mux, outside the job
// endpoints. The pattern uses http.ServeMux syntax.
func WithRoute(pattern string, h http.Handler) ServerOption {
	return func(s *Server) {
		if s.config.ExtraRoutes == nil {
			s.config.ExtraRoutes = make(map[string]http.Handler)
		}
		s.config.ExtraRoutes[pattern] = h
	}
}

// NewServer creates a new transport server with the given runner, store
// and advisor. The JobStore is optional (pass nil to disable async
// endpoints). Default job middleware (recovery, request ID, logging) is
// applied automatically.
func NewServer(runner transport.JobRunner, store transport.JobStore, advisor transport.CapacityAdvisor, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	adapterCfg := Config{
		Addr:        s.config.Addr,
		MaxBodySize: s.config.MaxBodySize,
	}

	defaultMW := []transport.Middleware{
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	}

	s.adapter = NewAdapter(runner, store, advisor, adapterCfg, defaultMW...)

	var handler http.Handler = s.adapter.Handler()
	if len(s.config.ExtraRoutes) > 0 {
		mux := http.NewServeMux()
		for pattern, h := range s.config.ExtraRoutes {
			mux.Handle(pattern, h)
		}
		mux.Handle("/", handler)
		handler = mux
	}
	for i := len(s.config.Wrappers) - 1; i >= 0; i-- {
		handler = s.config.Wrappers[i](handler)
	}

	s.httpServer = &http.Server{
		Addr:        s.config.Addr,
		Handler:     handler,
		ReadTimeout: s.config.ReadTimeout,
	}

	return s
}

// Adapter exposes the underlying adapter, mainly for tests.
func (s *Server) Adapter() *Adapter {
	return s.adapter
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// waiting for in-flight requests to complete within the configured timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.listenAndServeWithContext(ctx)
}

func (s *Server) listenAndServeWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

// ServeOn starts the server on the given listener. Used for testing.
func (s *Server) ServeOn(ln net.Listener) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
