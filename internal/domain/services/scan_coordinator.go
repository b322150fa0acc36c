package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

const defaultRefreshLockKey = "scan:refresh"

// ScanCoordinatorConfig tunes the reconciliation cycle
type ScanCoordinatorConfig struct {
	// IncrementalWhitelist re-evaluates only the edited package on whitelist changes
	IncrementalWhitelist bool
	LockKey              string
	LockTTL              time.Duration
}

// CoordinatorOption configures optional collaborators
type CoordinatorOption func(*ScanCoordinator)

// WithNotifier sets the high-risk alert channel
func WithNotifier(n Notifier) CoordinatorOption {
	return func(c *ScanCoordinator) { c.notifier = n }
}

// WithEventPublisher sets the scan_completed event sink
func WithEventPublisher(p EventPublisher) CoordinatorOption {
	return func(c *ScanCoordinator) { c.publisher = p }
}

// WithLocker serializes refreshes across processes
func WithLocker(l Locker) CoordinatorOption {
	return func(c *ScanCoordinator) { c.locker = l }
}

// WithReportCache stores the latest report after each cycle
func WithReportCache(rc ReportCache) CoordinatorOption {
	return func(c *ScanCoordinator) { c.reports = rc }
}

type taskFunc func(ctx context.Context) (*models.ScanReport, error)

type task struct {
	ctx    context.Context
	run    taskFunc
	result chan taskResult
}

type taskResult struct {
	report *models.ScanReport
	err    error
}

// ScanCoordinator runs the scan-replace-notify cycle. All cycles and
// whitelist edits go through one worker goroutine, so they never overlap.
type ScanCoordinator struct {
	scanner   *ThreatScanner
	threats   ThreatStore
	whitelist WhitelistStore
	notifier  Notifier
	publisher EventPublisher
	locker    Locker
	reports   ReportCache
	config    ScanCoordinatorConfig
	logger    *logger.Logger

	tasks     chan *task
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.RWMutex
	last *models.ScanReport
}

// NewScanCoordinator creates a coordinator and starts its worker
func NewScanCoordinator(
	cfg ScanCoordinatorConfig,
	scanner *ThreatScanner,
	threats ThreatStore,
	whitelist WhitelistStore,
	log *logger.Logger,
	opts ...CoordinatorOption,
) *ScanCoordinator {
	if cfg.LockKey == "" {
		cfg.LockKey = defaultRefreshLockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}

	c := &ScanCoordinator{
		scanner:   scanner,
		threats:   threats,
		whitelist: whitelist,
		config:    cfg,
		logger:    log.WithComponent("scan-coordinator"),
		tasks:     make(chan *task),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.loop()
	return c
}

func (c *ScanCoordinator) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case t := <-c.tasks:
			report, err := t.run(t.ctx)
			t.result <- taskResult{report: report, err: err}
		}
	}
}

// submit queues fn on the worker and waits for its result
func (c *ScanCoordinator) submit(ctx context.Context, fn taskFunc) (*models.ScanReport, error) {
	t := &task{ctx: ctx, run: fn, result: make(chan taskResult, 1)}

	select {
	case <-c.quit:
		return nil, ErrCoordinatorClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case c.tasks <- t:
	}

	select {
	case res := <-t.result:
		return res.report, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker after the in-flight cycle finishes
func (c *ScanCoordinator) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
	})
	<-c.done
	return nil
}

// Refresh runs one full reconciliation cycle
func (c *ScanCoordinator) Refresh(ctx context.Context) (*models.ScanReport, error) {
	return c.submit(ctx, c.refresh)
}

// AddToWhitelist exempts packageName and reconciles the threat collection
func (c *ScanCoordinator) AddToWhitelist(ctx context.Context, packageName string) (*models.ScanReport, error) {
	return c.submit(ctx, func(ctx context.Context) (*models.ScanReport, error) {
		if err := c.whitelist.Add(ctx, packageName); err != nil {
			return nil, fmt.Errorf("failed to add %s to whitelist: %w", packageName, err)
		}
		c.logger.Info().Str("package", packageName).Msg("package whitelisted")

		if c.config.IncrementalWhitelist {
			return c.reconcilePackage(ctx, packageName)
		}
		return c.refresh(ctx)
	})
}

// RemoveFromWhitelist lifts the exemption and reconciles the threat collection
func (c *ScanCoordinator) RemoveFromWhitelist(ctx context.Context, packageName string) (*models.ScanReport, error) {
	return c.submit(ctx, func(ctx context.Context) (*models.ScanReport, error) {
		if err := c.whitelist.Remove(ctx, packageName); err != nil {
			return nil, fmt.Errorf("failed to remove %s from whitelist: %w", packageName, err)
		}
		c.logger.Info().Str("package", packageName).Msg("package removed from whitelist")

		if c.config.IncrementalWhitelist {
			return c.reconcilePackage(ctx, packageName)
		}
		return c.refresh(ctx)
	})
}

// Threats returns the persisted threat collection in presentation order
func (c *ScanCoordinator) Threats(ctx context.Context) ([]models.Threat, error) {
	return c.threats.GetAll(ctx)
}

// Whitelist returns the persisted whitelist
func (c *ScanCoordinator) Whitelist(ctx context.Context) ([]models.WhitelistedApp, error) {
	return c.whitelist.GetAll(ctx)
}

// LastReport returns the report of the last successful cycle, or nil
func (c *ScanCoordinator) LastReport() *models.ScanReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *ScanCoordinator) refresh(ctx context.Context) (*models.ScanReport, error) {
	started := time.Now()
	scanLog := c.logger.WithScanID(uuid.New().String())

	release, err := c.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	listed, err := c.whitelist.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist: %w", err)
	}
	snapshot := models.WhitelistSet(listed)

	result, err := c.scanner.Scan(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to scan installed applications: %w", err)
	}

	// nothing downstream runs unless the results are durable
	if err := c.threats.ReplaceAll(ctx, result.Threats); err != nil {
		scanLog.Error().Err(err).Msg("failed to persist scan results, aborting cycle")
		return nil, fmt.Errorf("failed to persist threats: %w", err)
	}

	report := c.newReport(started, result.Threats, result.Scanned)
	report.Notified = c.notifyFirstHigh(ctx, result.Threats)
	c.finish(ctx, report)

	scanLog.Info().
		Int("threats", len(report.Threats)).
		Int("score", report.Posture.Score).
		Dur("duration", report.Duration).
		Msg("refresh completed")

	return report, nil
}

// reconcilePackage re-evaluates one package against the persisted collection
func (c *ScanCoordinator) reconcilePackage(ctx context.Context, packageName string) (*models.ScanReport, error) {
	started := time.Now()

	release, err := c.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	listed, err := c.whitelist.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist: %w", err)
	}
	snapshot := models.WhitelistSet(listed)

	current, err := c.threats.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read threats: %w", err)
	}

	// device findings are never subject to the whitelist and stay first,
	// as they are in a full scan
	next := make([]models.Threat, 0, len(current)+1)
	for _, t := range current {
		if t.ThreatType == models.ThreatTypeRootAccess {
			next = append(next, t)
		}
	}
	for _, t := range current {
		if t.ThreatType != models.ThreatTypeRootAccess && t.PackageName != packageName {
			next = append(next, t)
		}
	}

	found, err := c.scanner.ScanPackage(ctx, packageName, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", packageName, err)
	}
	scanned := 0
	if found != nil {
		next = DeduplicateThreats(append(next, *found), c.logger)
		scanned = 1
	}

	if err := c.threats.ReplaceAll(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to persist threats: %w", err)
	}

	report := c.newReport(started, next, scanned)
	if found != nil && found.RiskLevel == models.RiskLevelHigh {
		report.Notified = c.notifyFirstHigh(ctx, []models.Threat{*found})
	}
	c.finish(ctx, report)

	c.logger.Info().
		Str("package", packageName).
		Bool("finding", found != nil).
		Int("threats", len(next)).
		Msg("package reconciled")

	return report, nil
}

func (c *ScanCoordinator) lock(ctx context.Context) (func(), error) {
	if c.locker == nil {
		return func() {}, nil
	}

	acquired, err := c.locker.AcquireLock(ctx, c.config.LockKey, c.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire refresh lock: %w", err)
	}
	if !acquired {
		return nil, ErrScanInProgress
	}

	return func() {
		if err := c.locker.ReleaseLock(context.WithoutCancel(ctx), c.config.LockKey); err != nil {
			c.logger.Warn().Err(err).Msg("failed to release refresh lock")
		}
	}, nil
}

func (c *ScanCoordinator) newReport(started time.Time, threats []models.Threat, scanned int) *models.ScanReport {
	completed := time.Now()
	if threats == nil {
		threats = []models.Threat{}
	}
	return &models.ScanReport{
		ID:          uuid.New(),
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Threats:     threats,
		Posture:     ComputePosture(threats),
		Scanned:     scanned,
	}
}

// notifyFirstHigh delivers at most one alert, for the first High threat in
// emission order. Delivery failures are logged and dropped.
func (c *ScanCoordinator) notifyFirstHigh(ctx context.Context, threats []models.Threat) *models.Threat {
	for i := range threats {
		if threats[i].RiskLevel != models.RiskLevelHigh {
			continue
		}
		selected := threats[i]
		if c.notifier == nil {
			return &selected
		}
		if err := c.notifier.NotifyHighRiskThreat(ctx, selected); err != nil {
			c.logger.Warn().Err(err).Str("package", selected.PackageName).Msg("failed to deliver high-risk notification")
		}
		return &selected
	}
	return nil
}

func (c *ScanCoordinator) finish(ctx context.Context, report *models.ScanReport) {
	c.mu.Lock()
	c.last = report
	c.mu.Unlock()

	if c.publisher != nil {
		if err := c.publisher.PublishScanCompleted(ctx, report); err != nil {
			c.logger.Warn().Err(err).Msg("failed to publish scan event")
		}
	}
	if c.reports != nil {
		if err := c.reports.SetLatestReport(ctx, report); err != nil {
			c.logger.Warn().Err(err).Msg("failed to cache scan report")
		}
	}
}
