package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"stockbt/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Server hosts the HTTP API and, when a gRPC port is configured, the gRPC
// BacktestService.
type Server struct {
	cfg  config.Server
	svc  *Service
	log  *slog.Logger
	http *http.Server
	grpc *grpc.Server
}

// NewServer creates a new Server for svc configured from cfg.
func NewServer(cfg config.Server, svc *Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "server")

	gs := grpc.NewServer()
	NewGRPCServer(svc).RegisterGRPC(gs)

	return &Server{
		cfg: cfg,
		svc: svc,
		log: log,
		http: &http.Server{
			Addr:              cfg.HTTPAddr(),
			Handler:           NewHandlers(svc, log).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpc: gs,
	}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// GRPC returns the gRPC server with BacktestService registered.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr())
	if err != nil {
		return err
	}
	var grpcLn net.Listener
	if addr := s.cfg.GRPCAddr(); addr != "" {
		if grpcLn, err = net.Listen("tcp", addr); err != nil {
			httpLn.Close()
			return err
		}
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve serves on already bound listeners. grpcLn may be nil.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if grpcLn != nil {
		g.Go(func() error {
			s.log.Info("gRPC server listening", "addr", grpcLn.Addr().String())
			if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	err := s.http.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	return err
}
