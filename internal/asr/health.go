package asr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// HealthReport is the outcome of one recognizer health check.
type HealthReport struct {
	Endpoint string
	Service  string
	Serving  bool
	Status   string
	// Raw is the health reply rendered as JSON.
	Raw     string
	Latency time.Duration
}

// CheckHealth queries a gRPC health endpoint exposed next to the recognizer.
func CheckHealth(ctx context.Context, endpoint string, service string, timeout time.Duration) (HealthReport, error) {
	endpoint = strings.TrimSpace(endpoint)
	report := HealthReport{Endpoint: endpoint, Service: service}
	if endpoint == "" {
		return report, errors.New("recognizer health endpoint is empty")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return report, fmt.Errorf("create grpc client for %s: %w", endpoint, err)
	}
	defer conn.Close()

	conn.Connect()
	if err := waitForReady(checkCtx, conn); err != nil {
		return report, fmt.Errorf("connect recognizer health %s: %w", endpoint, err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return report, fmt.Errorf("recognizer health check: %w", err)
	}

	report.Latency = time.Since(started)
	report.Status = resp.GetStatus().String()
	report.Serving = resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	report.Raw = protojson.Format(resp)
	return report, nil
}

// waitForReady blocks until the connection is Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
