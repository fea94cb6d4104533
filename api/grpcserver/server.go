package grpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	config "github.com/offboardpro/offboardpro/api/config"
)

// Server exposes gRPC health and reflection. The entitlement service is
// reported SERVING only while the observer's change feed is open.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func New() *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	hs.SetServingStatus(config.EntitlementService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{grpc: gs, health: hs}
}

// SetFeedState is the observer feed callback.
func (s *Server) SetFeedState(up bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(config.EntitlementService, st)
}

// Check answers a health probe for service ("" is the whole server).
func (s *Server) Check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error) {
	return s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
}

// Serve listens on addr until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()
	slog.Info("grpc server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}
