package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"secureguard-lab/internal/api"
	"secureguard-lab/internal/api/handlers"
	apimiddleware "secureguard-lab/internal/api/middleware"
	"secureguard-lab/internal/domain/services"
	"secureguard-lab/internal/grpc/healthcheck"
	"secureguard-lab/internal/streaming"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health service and periodic scanner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg, log := a.config, a.logger

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting secureguard")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snapshot := func(ctx context.Context) (*streaming.ScanEvent, error) {
		threats, err := a.coordinator.Threats(ctx)
		if err != nil {
			return nil, err
		}
		return streaming.NewSnapshotEvent(threats, services.ComputePosture(threats)), nil
	}
	wsHub := streaming.NewWebSocketHub(a.bus, snapshot, log)

	var scheduler *services.Scheduler
	if cfg.Scheduler.Enabled {
		var connectivity services.ConnectivityChecker
		if cfg.Scheduler.ConnectivityHost != "" {
			connectivity = services.TCPConnectivityChecker{
				Address: cfg.Scheduler.ConnectivityHost,
				Timeout: cfg.Scheduler.ConnectTimeout,
			}
		}
		scheduler = services.NewScheduler(services.SchedulerConfig{
			Interval:       cfg.Scheduler.Interval,
			RunOnStart:     true,
			MaxRetries:     cfg.Scheduler.MaxRetries,
			BaseRetryDelay: cfg.Scheduler.BaseRetryDelay,
			MaxRetryDelay:  cfg.Scheduler.MaxRetryDelay,
			HistorySize:    cfg.Scheduler.HistorySize,
		}, a.coordinator, connectivity, log)
	}

	checks := make(map[string]handlers.HealthCheck, len(a.probes))
	probes := make(map[string]healthcheck.Probe, len(a.probes))
	for name, probe := range a.probes {
		checks[name] = probe
		probes[name] = probe
	}

	deps := handlers.Dependencies{
		Service:  a.coordinator,
		Checks:   checks,
		Hub:      wsHub,
		EventBus: a.bus,
		Version:  cfg.App.Version,
		Logger:   log,
	}
	if scheduler != nil {
		deps.Scheduler = scheduler
	}

	var limiter apimiddleware.RateLimitChecker
	if a.redis != nil {
		limiter = a.redis
	}
	router := api.NewRouter(*cfg, handlers.NewHandlers(deps), limiter, log)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.HTTPPort)),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	reporter := healthcheck.NewReporter(probes, 0, log)
	grpcAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		reporter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return healthcheck.Serve(gctx, grpcAddr, reporter, log)
	})
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server.ShutdownTimeout))
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if scheduler != nil {
		g.Go(func() error {
			if err := scheduler.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	log.Info().Msg("secureguard stopped")
	return err
}

func shutdownTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 15 * time.Second
	}
	return d
}
