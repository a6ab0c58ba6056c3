package api

import (
	"context"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status.
const ServiceName = "eodcloser.Runner"

// RegisterGRPC registers the health service on gs.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, s.health)
	s.syncHealth()
}

// syncHealth mirrors the runner liveness into the health service.
func (s *Server) syncHealth() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.status.Running() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) watchHealth(ctx context.Context) {
	t := time.NewTicker(healthPoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.syncHealth()
		}
	}
}
