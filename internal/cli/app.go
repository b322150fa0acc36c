package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"secureguard-lab/internal/config"
	"secureguard-lab/internal/detection/model"
	"secureguard-lab/internal/domain/services"
	"secureguard-lab/internal/infrastructure/cache"
	"secureguard-lab/internal/infrastructure/database"
	"secureguard-lab/internal/infrastructure/database/repository"
	"secureguard-lab/internal/platform/android"
	"secureguard-lab/internal/streaming"
	"secureguard-lab/pkg/logger"
)

// app is the wired scanning stack shared by every command
type app struct {
	config      *config.Config
	logger      *logger.Logger
	registry    android.Registry
	threats     services.ThreatStore
	whitelist   services.WhitelistStore
	scanner     *services.ThreatScanner
	coordinator *services.ScanCoordinator
	redis       *cache.RedisCache
	nats        *streaming.NATSPublisher
	bus         *streaming.EventBus

	// probes report dependency health to /ready and gRPC health
	probes  map[string]func(ctx context.Context) error
	closers []func()
}

// newApp wires storage, registry, model and messaging from cfg. Optional
// dependencies (redis, nats) degrade to disabled when unreachable.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		config: cfg,
		logger: log,
		probes: make(map[string]func(ctx context.Context) error),
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, log := a.config, a.logger

	if err := a.openStorage(ctx); err != nil {
		return err
	}

	registry, err := newRegistry(cfg.Registry, log)
	if err != nil {
		return err
	}
	a.registry = registry

	opener, err := newModelLoader(cfg.Model, log)
	if err != nil {
		return err
	}

	a.scanner = services.NewThreatScanner(
		services.ThreatScannerConfig{Workers: cfg.Scan.Workers, AIThreshold: cfg.Scan.AIThreshold},
		a.registry,
		services.NewFeatureExtractor(a.registry, log),
		opener,
		services.NewRootDetector(afero.NewOsFs(), cfg.Scan.RootPaths, log),
		log,
	)

	opts := a.openMessaging(ctx)
	a.coordinator = services.NewScanCoordinator(
		services.ScanCoordinatorConfig{
			IncrementalWhitelist: cfg.Scan.IncrementalWhitelist,
			LockTTL:              cfg.Redis.LockTTL,
		},
		a.scanner,
		a.threats,
		a.whitelist,
		log,
		opts...,
	)
	a.closers = append(a.closers, func() { a.coordinator.Close() })
	return nil
}

func (a *app) openStorage(ctx context.Context) error {
	switch a.config.Storage.Driver {
	case "memory":
		a.threats = repository.NewMemoryThreatRepository()
		a.whitelist = repository.NewMemoryWhitelistRepository()

	case "sqlite":
		db, err := database.NewSQLite(ctx, a.config.SQLite, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { db.Close() })
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		a.threats = repository.NewSQLiteThreatRepository(db)
		a.whitelist = repository.NewSQLiteWhitelistRepository(db)
		a.probes["sqlite"] = db.Ping

	case "postgres":
		db, err := database.NewPostgres(ctx, a.config.Database, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		a.threats = repository.NewPostgresThreatRepository(db)
		a.whitelist = repository.NewPostgresWhitelistRepository(db)
		a.probes["postgres"] = db.Ping

	default:
		return fmt.Errorf("unsupported storage driver %q", a.config.Storage.Driver)
	}

	a.logger.Info().Str("driver", a.config.Storage.Driver).Msg("storage initialized")
	return nil
}

func (a *app) openMessaging(ctx context.Context) []services.CoordinatorOption {
	var opts []services.CoordinatorOption

	if a.config.Redis.Enabled {
		redisCache, err := cache.NewRedis(ctx, a.config.Redis, a.logger)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to connect to Redis, continuing without scan lock")
		} else {
			a.redis = redisCache
			a.closers = append(a.closers, func() { redisCache.Close() })
			a.probes["redis"] = redisCache.Ping
			opts = append(opts, services.WithLocker(redisCache), services.WithReportCache(redisCache))
		}
	}

	if a.config.NATS.Enabled {
		pub, err := streaming.NewNATSPublisher(ctx, a.config.NATS, a.logger)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to connect to NATS, continuing without event streaming")
		} else {
			a.nats = pub
			a.closers = append(a.closers, pub.Close)
			a.probes["nats"] = func(context.Context) error {
				if !pub.IsConnected() {
					return streaming.ErrNotConnected
				}
				return nil
			}
		}
	}

	a.bus = streaming.NewEventBus(a.nats, a.logger)
	a.closers = append(a.closers, a.bus.Close)

	busPublisher := streaming.NewEventBusPublisher(a.bus)
	opts = append(opts,
		services.WithEventPublisher(busPublisher),
		services.WithNotifier(services.MultiNotifier{services.NewLogNotifier(a.logger), busPublisher}),
	)
	return opts
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newRegistry(cfg config.RegistryConfig, log *logger.Logger) (android.Registry, error) {
	switch cfg.Source {
	case "inventory":
		return android.NewInventoryRegistry(afero.NewOsFs(), cfg.InventoryPath, log), nil
	case "adb":
		return newADBRegistry(cfg, log), nil
	default:
		return nil, fmt.Errorf("unsupported registry source %q", cfg.Source)
	}
}

func newADBRegistry(cfg config.RegistryConfig, log *logger.Logger) *android.ADBRegistry {
	return android.NewADBRegistry(android.ADBConfig{
		Path:    cfg.ADBPath,
		Serial:  cfg.Serial,
		Timeout: cfg.Timeout,
	}, nil, log)
}

// newModelLoader returns nil when no model path is configured. A configured
// signature requires a keyring.
func newModelLoader(cfg config.ModelConfig, log *logger.Logger) (services.ModelOpener, error) {
	if cfg.Path == "" {
		log.Warn().Msg("no model configured, permission heuristic only")
		return nil, nil
	}

	fs := afero.NewOsFs()
	var opts []model.LoaderOption
	if cfg.SignaturePath != "" {
		if cfg.KeyringPath == "" {
			return nil, errors.New("model.signature_path requires model.keyring_path")
		}
		verifier := model.NewVerifier()
		if err := verifier.ImportKeyFromFile(fs, cfg.KeyringPath); err != nil {
			return nil, fmt.Errorf("failed to load model keyring: %w", err)
		}
		opts = append(opts, model.WithSignature(cfg.SignaturePath, verifier))
	}

	if _, err := os.Stat(cfg.Path); err != nil {
		log.Warn().Err(err).Str("path", cfg.Path).Msg("model artifact not readable yet, will retry each scan")
	}
	return model.NewLoader(fs, cfg.Path, log, opts...), nil
}
