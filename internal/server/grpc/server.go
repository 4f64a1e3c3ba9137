// Package grpcserver hosts the operational gRPC endpoint: health and, in
// dev mode, reflection.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/and161185/cookiepool/internal/auth"
	"github.com/and161185/cookiepool/internal/model"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the pool.
const ServiceName = "cookiepool.Pool"

// Options configures the gRPC server.
type Options struct {
	CertFile string // TLS is enabled when both files are set
	KeyFile  string
	Dev      bool
	Tokens   *auth.Tokens
}

// Server wraps a grpc.Server with a health service tied to the pool.
type Server struct {
	gs     *grpc.Server
	health *health.Server
	log    *zap.Logger
}

// New constructs the server with logging, recovery and admin interceptors.
func New(opts Options, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	unary := []grpc.UnaryServerInterceptor{RecoverUnary(log), LoggingUnary(log)}
	stream := []grpc.StreamServerInterceptor{RecoverStream(log), LoggingStream(log)}
	if opts.Tokens.Enabled() {
		unary = append(unary, AdminUnary(opts.Tokens))
		stream = append(stream, AdminStream(opts.Tokens))
	}

	sopts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}
	if opts.CertFile != "" && opts.KeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS cert/key: %w", err)
		}
		sopts = append(sopts, grpc.Creds(creds))
	}

	gs := grpc.NewServer(sopts...)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	if opts.Dev {
		reflection.Register(gs)
	}
	return &Server{gs: gs, health: hs, log: log}, nil
}

// ReportPool marks the pool SERVING while any credential is not known invalid.
func (s *Server) ReportPool(st model.PoolStatus) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if st.Valid+st.Unknown > 0 {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks serving on lis until ctx is canceled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("grpc listening", zap.String("addr", lis.Addr().String()))
		errCh <- s.gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		done := make(chan struct{})
		go func() {
			s.gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.gs.Stop()
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Run listens on addr and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}
