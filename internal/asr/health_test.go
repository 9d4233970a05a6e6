package asr

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T, status healthpb.HealthCheckResponse_ServingStatus) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", status)
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestCheckHealthServing(t *testing.T) {
	addr := startHealthServer(t, healthpb.HealthCheckResponse_SERVING)

	report, err := CheckHealth(context.Background(), addr, "", 3*time.Second)
	require.NoError(t, err)
	require.True(t, report.Serving)
	require.Equal(t, "SERVING", report.Status)
	require.Contains(t, report.Raw, "SERVING")
	require.Equal(t, addr, report.Endpoint)
}

func TestCheckHealthNotServing(t *testing.T) {
	addr := startHealthServer(t, healthpb.HealthCheckResponse_NOT_SERVING)

	report, err := CheckHealth(context.Background(), addr, "", 3*time.Second)
	require.NoError(t, err)
	require.False(t, report.Serving)
	require.Equal(t, "NOT_SERVING", report.Status)
}

func TestCheckHealthEmptyEndpoint(t *testing.T) {
	_, err := CheckHealth(context.Background(), "  ", "", time.Second)
	require.Error(t, err)
}

func TestCheckHealthUnreachable(t *testing.T) {
	_, err := CheckHealth(context.Background(), "127.0.0.1:1", "", 300*time.Millisecond)
	require.Error(t, err)
}
