package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

// DefaultAIThreshold is the score above which the model alone flags High
const DefaultAIThreshold = 0.95

// ThreatScannerConfig tunes a scan
type ThreatScannerConfig struct {
	// Workers bounds concurrent per-application evaluation. 1 is sequential.
	Workers int
	// AIThreshold: score > AIThreshold emits an AI finding and skips the heuristic.
	AIThreshold float64
}

// ScanResult is the authoritative output of one scan cycle
type ScanResult struct {
	Threats        []models.Threat
	Scanned        int
	ModelAvailable bool
}

// ThreatScanner classifies every installed application
type ThreatScanner struct {
	registry  AppRegistry
	extractor *FeatureExtractor
	models    ModelOpener
	root      *RootDetector
	config    ThreatScannerConfig
	logger    *logger.Logger
}

// NewThreatScanner creates a new ThreatScanner. opener may be nil, in which
// case only the permission heuristic runs.
func NewThreatScanner(
	cfg ThreatScannerConfig,
	registry AppRegistry,
	extractor *FeatureExtractor,
	opener ModelOpener,
	root *RootDetector,
	log *logger.Logger,
) *ThreatScanner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.AIThreshold <= 0 {
		cfg.AIThreshold = DefaultAIThreshold
	}
	return &ThreatScanner{
		registry:  registry,
		extractor: extractor,
		models:    opener,
		root:      root,
		config:    cfg,
		logger:    log.WithComponent("threat-scanner"),
	}
}

// Scan evaluates every third-party application not in whitelist. Threats are
// returned in emission order: the root finding first, then registry order.
// Cancellation is checked between applications.
func (s *ThreatScanner) Scan(ctx context.Context, whitelist map[string]struct{}) (*ScanResult, error) {
	var threats []models.Threat

	if s.root != nil && s.root.IsDeviceRooted() {
		threats = append(threats, models.NewRootThreat())
	}

	rm := NewRiskModel(s.models, s.logger)
	rm.Load(ctx)
	defer rm.Release()

	apps, err := s.registry.ListInstalledApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed applications: %w", err)
	}

	candidates := make([]models.InstalledApp, 0, len(apps))
	for _, app := range apps {
		if app.IsSystemApp {
			continue
		}
		if _, skip := whitelist[app.PackageName]; skip {
			continue
		}
		candidates = append(candidates, app)
	}

	// one slot per candidate keeps emission order independent of scheduling
	slots := make([]*models.Threat, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, app := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = s.evaluateSafely(gctx, rm, app)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, t := range slots {
		if t != nil {
			threats = append(threats, *t)
		}
	}

	result := &ScanResult{
		Threats:        DeduplicateThreats(threats, s.logger),
		Scanned:        len(candidates),
		ModelAvailable: rm.Available(),
	}

	s.logger.Info().
		Int("installed", len(apps)).
		Int("scanned", result.Scanned).
		Int("threats", len(result.Threats)).
		Bool("model_available", result.ModelAvailable).
		Msg("scan completed")

	return result, nil
}

// ScanPackage evaluates a single installed application with a fresh model
// session. It returns nil when the package yields no finding, is a system
// component, is whitelisted, or is not installed.
func (s *ThreatScanner) ScanPackage(ctx context.Context, packageName string, whitelist map[string]struct{}) (*models.Threat, error) {
	if _, skip := whitelist[packageName]; skip {
		return nil, nil
	}

	apps, err := s.registry.ListInstalledApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed applications: %w", err)
	}

	for _, app := range apps {
		if app.PackageName != packageName {
			continue
		}
		if app.IsSystemApp {
			return nil, nil
		}

		rm := NewRiskModel(s.models, s.logger)
		rm.Load(ctx)
		defer rm.Release()

		return s.evaluateSafely(ctx, rm, app), nil
	}

	return nil, nil
}

// evaluateSafely isolates one application's failure from the whole scan
func (s *ThreatScanner) evaluateSafely(ctx context.Context, rm *RiskModel, app models.InstalledApp) (threat *models.Threat) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.WithPackage(app.PackageName).Error().
				Interface("panic", p).
				Msg("application evaluation panicked, skipping")
			threat = nil
		}
	}()
	return s.evaluate(ctx, rm, app)
}

func (s *ThreatScanner) evaluate(ctx context.Context, rm *RiskModel, app models.InstalledApp) *models.Threat {
	vector, meta := s.extractor.ExtractWithMetadata(ctx, app.PackageName)
	score := rm.Score(vector)

	if score > s.config.AIThreshold {
		return &models.Threat{
			AppName:     app.DisplayName(),
			PackageName: app.PackageName,
			ThreatType:  models.ThreatTypeAIAnalysis,
			RiskLevel:   models.RiskLevelHigh,
			Description: fmt.Sprintf("Predicted as high-risk by AI model (Risk Score: %.2f).", score),
			Score:       score,
		}
	}

	if meta == nil {
		return nil
	}

	granted := meta.GrantedDangerousPermissions()
	level, ok := ClassifyPermissions(len(granted))
	if !ok {
		return nil
	}

	return &models.Threat{
		AppName:     app.DisplayName(),
		PackageName: app.PackageName,
		ThreatType:  models.ThreatTypePermission,
		RiskLevel:   level,
		Description: describePermissions(granted),
	}
}

func describePermissions(granted []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Has %d potentially risky permission(s):", len(granted))
	for _, p := range granted {
		b.WriteString("\n- ")
		b.WriteString(models.ShortPermissionName(p))
	}
	return b.String()
}
