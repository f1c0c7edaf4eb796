package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "consultancy-auth/backend/internal/health/handler"
	"consultancy-auth/backend/internal/server/interceptors"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// Deps holds the services exposed over gRPC.
type Deps struct {
	// Health backs grpc.health.v1. If nil, the health service is not registered.
	Health *healthhandler.Server
}

// NewGRPCServer returns a grpc.Server instrumented with otelgrpc and the logging interceptor.
func NewGRPCServer(logger *zap.Logger) *grpc.Server {
	return grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.LoggingUnary(logger, map[string]bool{healthCheckMethod: true})),
	)
}

// RegisterServices registers the gRPC services with s.
//
// Proto → handler mapping:
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health.GRPC())
	}
}
