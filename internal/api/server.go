// Package api serves the closer's status surface: HTTP health, status and
// metrics endpoints plus a gRPC health service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"eodcloser/internal/runner"
)

const (
	shutdownTimeout = 5 * time.Second
	healthPoll      = time.Second
)

// StatusSource reports the runner state served by the endpoints.
type StatusSource interface {
	Snapshot() runner.Snapshot
	Running() bool
}

// Server hosts the HTTP and gRPC listeners.
type Server struct {
	httpAddr string
	grpcAddr string
	status   StatusSource
	metrics  http.Handler
	health   *health.Server
	log      *slog.Logger
}

// NewServer creates a Server. An empty grpcAddr disables the gRPC listener;
// a nil metrics handler leaves /metrics unrouted.
func NewServer(httpAddr, grpcAddr string, status StatusSource, metrics http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		httpAddr: httpAddr,
		grpcAddr: grpcAddr,
		status:   status,
		metrics:  metrics,
		health:   health.NewServer(),
		log:      log.With("component", "api"),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe starts the listeners and blocks until ctx is cancelled or
// a listener fails, then shuts both down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		s.log.Info("status server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if s.grpcAddr != "" {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			shutdownHTTP(httpServer, s.log)
			return fmt.Errorf("grpc listen %s: %w", s.grpcAddr, err)
		}
		grpcServer = grpc.NewServer()
		s.RegisterGRPC(grpcServer)
		go func() {
			s.log.Info("grpc health listening", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		go s.watchHealth(ctx)
	}

	var err error
	select {
	case <-ctx.Done():
		s.log.Info("shutting down status server")
	case err = <-errCh:
		s.log.Error("status server failed", "error", err)
	}

	s.health.Shutdown()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	shutdownHTTP(httpServer, s.log)
	return err
}

func shutdownHTTP(srv *http.Server, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
