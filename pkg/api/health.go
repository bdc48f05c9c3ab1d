package api

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside ""
const ServiceName = "foodie"

// syncReadiness mirrors HealthChecker readiness into the gRPC health
// service until ctx is done
func (s *Server) syncReadiness(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReadinessInterval)
	defer ticker.Stop()

	s.updateServingStatus(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateServingStatus(ctx)
		}
	}
}

func (s *Server) updateServingStatus(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.checker.IsReady(ctx) {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.grpcHealth.SetServingStatus("", status)
	s.grpcHealth.SetServingStatus(ServiceName, status)
	return status
}
