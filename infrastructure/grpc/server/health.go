// Package server exposes the standard gRPC health service, fed by the health monitoring worker.
package server

import (
	"log/slog"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthPublisher maps health rounds onto grpc.health.v1 serving statuses.
// The empty service name is the overall status of the relay.
type HealthPublisher struct {
	log    *slog.Logger
	server *health.Server
}

func NewHealthPublisher(log *slog.Logger) *HealthPublisher {
	server := health.NewServer()
	// Nothing has been probed yet
	server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthPublisher{log: log, server: server}
}

func (p *HealthPublisher) Publish(service string, healthy bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}
	p.server.SetServingStatus(service, status)
}

// Shutdown flips every service to NOT_SERVING and ignores later updates.
func (p *HealthPublisher) Shutdown() {
	p.log.Info("Marking gRPC health as not serving")
	p.server.Shutdown()
}

// NewServer builds a gRPC server with request logging and the health service registered.
func NewServer(log *slog.Logger, publisher *HealthPublisher) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(log),
		))
	healthpb.RegisterHealthServer(s, publisher.server)
	return s
}
