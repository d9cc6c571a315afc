package grpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"agenthud.router/internal/core/logger"
)

// RegistryService is the health service name reported for the agent
// registry, next to the overall "" service.
const RegistryService = "agenthud.Registry"

// Server exposes the standard gRPC health protocol so orchestrators can
// probe the router without HTTP.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewServer(opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(true)
	return s
}

// SetServing flips both the overall and the registry service status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RegistryService, status)
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	logger.Info("gRPC health server starting", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop reports NOT_SERVING to watchers and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
