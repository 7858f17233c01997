// Package health serves the standard gRPC health protocol for the case store.
package health

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the case API.
const ServiceName = "medendorse.CaseService"

// DefaultProbeInterval is how often the store is pinged.
const DefaultProbeInterval = 15 * time.Second

// Pinger is satisfied by store.Repository.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps a gRPC server exposing grpc.health.v1.Health.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	repo   Pinger
}

// NewServer creates a health server probing repo.
func NewServer(repo Pinger) *Server {
	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{grpc: gs, health: hs, repo: repo}
}

// Probe pings the store once and publishes the result for the overall
// server and for ServiceName.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.repo.Ping(ctx); err != nil {
		slog.Warn("Health probe failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Start probes every interval until ctx is cancelled.
func (s *Server) Start(ctx context.Context, interval time.Duration) {
	s.Probe(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Probe(ctx)
			}
		}
	}()
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("gRPC health listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
