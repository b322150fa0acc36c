// Package healthcheck serves the standard gRPC health protocol for the
// scanning service, driven by periodic dependency probes.
package healthcheck

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"secureguard-lab/pkg/logger"
)

// ServiceName is the health-checked service name
const ServiceName = "secureguard.v1.ScanService"

// Probe checks one dependency
type Probe func(ctx context.Context) error

// Reporter keeps the health server status in line with its probes
type Reporter struct {
	server   *health.Server
	probes   map[string]Probe
	interval time.Duration
	logger   *logger.Logger
}

// NewReporter creates a reporter. Status starts as SERVING.
func NewReporter(probes map[string]Probe, interval time.Duration, log *logger.Logger) *Reporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	r := &Reporter{
		server:   health.NewServer(),
		probes:   probes,
		interval: interval,
		logger:   log.WithComponent("grpc-health"),
	}
	r.set(grpc_health_v1.HealthCheckResponse_SERVING)
	return r
}

// Server returns the underlying health server
func (r *Reporter) Server() *health.Server {
	return r.server
}

// Register registers the health service with grpcServer
func (r *Reporter) Register(grpcServer *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(grpcServer, r.server)
}

// Run probes every interval until ctx is done, then marks the service down
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.CheckOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			r.CheckOnce(ctx)
		}
	}
}

// CheckOnce runs every probe and updates the serving status
func (r *Reporter) CheckOnce(ctx context.Context) bool {
	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := r.probes[name](probeCtx)
		cancel()
		if err != nil {
			healthy = false
			r.logger.Warn().Err(err).Str("probe", name).Msg("health probe failed")
		}
	}

	if healthy {
		r.set(grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		r.set(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

func (r *Reporter) set(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(ServiceName, status)
}

// Serve starts a gRPC server exposing the health service on addr and
// blocks until ctx is done.
func Serve(ctx context.Context, addr string, reporter *Reporter, log *logger.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	reporter.Register(grpcServer)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("gRPC health server listening")
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	}
}
