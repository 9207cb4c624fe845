package server

import (
	"context"
	"log/slog"
	"net"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startHealthServer(t *testing.T) (*HealthPublisher, healthpb.HealthClient) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	publisher := NewHealthPublisher(log)
	s := NewServer(log, publisher)

	listener := bufconn.Listen(1024 * 1024)
	go func() { _ = s.Serve(listener) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return publisher, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthPublisher(t *testing.T) {
	req := require.New(t)
	publisher, client := startHealthServer(t)

	// Given nothing was probed yet
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))

	// When a round passes
	publisher.Publish("postgres", true)
	publisher.Publish("badger", true)
	publisher.Publish("", true)

	// Then every service is serving
	req.Equal(healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	req.Equal(healthpb.HealthCheckResponse_SERVING, check(t, client, "postgres"))

	// When postgres goes down
	publisher.Publish("postgres", false)
	publisher.Publish("", false)

	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, "postgres"))
	req.Equal(healthpb.HealthCheckResponse_SERVING, check(t, client, "badger"))
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))

	// Shutdown is final
	publisher.Shutdown()
	publisher.Publish("", true)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))
}
