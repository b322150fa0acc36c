package healthcheck

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"google.golang.org/grpc/health/grpc_health_v1"

	"secureguard-lab/pkg/logger"
)

func status(t *testing.T, r *Reporter, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.Server().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.Status
}

func TestReporterFollowsProbes(t *testing.T) {
	var failing atomic.Bool
	probes := map[string]Probe{
		"store": func(context.Context) error { return nil },
		"redis": func(context.Context) error {
			if failing.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
	}
	r := NewReporter(probes, 0, logger.NewNop())

	if got := status(t, r, ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("initial status = %v", got)
	}

	failing.Store(true)
	if r.CheckOnce(context.Background()) {
		t.Fatal("CheckOnce reported healthy with a failing probe")
	}
	for _, svc := range []string{"", ServiceName} {
		if got := status(t, r, svc); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
			t.Errorf("status(%q) = %v", svc, got)
		}
	}

	failing.Store(false)
	r.CheckOnce(context.Background())
	if got := status(t, r, ""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("recovered status = %v", got)
	}
}

func TestReporterRunStopsOnCancel(t *testing.T) {
	r := NewReporter(nil, 0, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if got := status(t, r, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after shutdown = %v", got)
	}
}
