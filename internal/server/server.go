package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/pg-mcp/internal/db"
	"github.com/malbeclabs/pg-mcp/internal/inspect"
	"github.com/malbeclabs/pg-mcp/internal/query"
	"github.com/malbeclabs/pg-mcp/internal/server/metrics"
)

const readyzTimeout = 3 * time.Second

type Server struct {
	log   *slog.Logger
	cfg   Config
	clock clockwork.Clock
	mcp   *mcp.Server
	http  *http.Server

	db        *db.Holder
	inspector *inspect.Inspector
	executor  *query.Executor
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate server config: %w", err)
	}

	inspector, err := inspect.New(inspect.Config{
		Logger:         cfg.Logger,
		IdentifierMode: cfg.IdentifierMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create inspector: %w", err)
	}

	executor, err := query.New(query.Config{
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	s := &Server{
		log:   cfg.Logger,
		cfg:   cfg,
		clock: cfg.Clock,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "postgres",
			Version: cfg.Version,
		}, nil),
		db:        cfg.DB,
		inspector: inspector,
		executor:  executor,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	if cfg.Transport == TransportHTTP {
		s.http = s.newHTTPServer()
	}

	return s, nil
}

func (s *Server) newHTTPServer() *http.Server {
	mux := http.NewServeMux()
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{
		Stateless: true,
	})
	mux.Handle("/", s.metricsMiddleware(routeMCP, handler))
	mux.Handle("/healthz", s.metricsMiddleware(routeHealthz, http.HandlerFunc(s.healthzHandler)))
	mux.Handle("/readyz", s.metricsMiddleware(routeReadyz, http.HandlerFunc(s.readyzHandler)))

	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
}

// Run serves until ctx is cancelled or, on stdio, until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Transport == TransportHTTP {
		return s.runHTTP(ctx)
	}

	s.log.Info("server: mcp stdio serving")
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	s.log.Info("server: mcp stdio stopped")
	return nil
}

func (s *Server) runHTTP(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: mcp streamable http listening", "listenAddr", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "listenAddr", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: HTTP server shutdown complete")
		return nil
	case err := <-serveErrCh:
		return err
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write healthz response", "error", err)
	}
}

// readyzHandler reports ready once the database answers a ping, connecting if needed.
func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.Debug("readyz: database not ready", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("database not ready\n")); err != nil {
			s.log.Error("failed to write readyz response", "error", err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write readyz response", "error", err)
	}
}

// Route labels for HTTP metrics. Every path under "/" is served by the MCP handler and
// counted as routeMCP.
const (
	routeMCP     = "mcp"
	routeHealthz = "healthz"
	routeReadyz  = "readyz"
)

// metricsMiddleware wraps an HTTP handler with metrics collection under a fixed route label.
func (s *Server) metricsMiddleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(s.clock.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streamed MCP responses working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
