package services

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

// FeatureExtractor encodes an application's manifest as a fixed-width 0/1 vector
type FeatureExtractor struct {
	registry AppRegistry
	logger   *logger.Logger

	// case-folded suspicious intents, in catalog order
	foldedIntents []string
}

// NewFeatureExtractor creates a new feature extractor
func NewFeatureExtractor(registry AppRegistry, log *logger.Logger) *FeatureExtractor {
	folder := cases.Fold()
	folded := make([]string, len(models.SuspiciousIntents))
	for i, intent := range models.SuspiciousIntents {
		folded[i] = folder.String(intent)
	}

	return &FeatureExtractor{
		registry:      registry,
		logger:        log.WithComponent("feature-extractor"),
		foldedIntents: folded,
	}
}

// Extract reads live metadata for packageName and encodes it. When metadata
// cannot be read the zero vector is returned and a warning logged.
func (fe *FeatureExtractor) Extract(ctx context.Context, packageName string) models.FeatureVector {
	vector, _ := fe.ExtractWithMetadata(ctx, packageName)
	return vector
}

// ExtractWithMetadata is Extract that also hands back the metadata it read,
// nil on failure, so the permission heuristic works from the same snapshot.
func (fe *FeatureExtractor) ExtractWithMetadata(ctx context.Context, packageName string) (models.FeatureVector, *models.PackageMetadata) {
	meta, err := fe.registry.PackageMetadata(ctx, packageName)
	if err != nil {
		fe.logger.Warn().Err(err).Str("package", packageName).Msg("could not extract features")
		return models.NewFeatureVector(), nil
	}
	return fe.FromMetadata(meta), meta
}

// FromMetadata encodes already-fetched metadata
func (fe *FeatureExtractor) FromMetadata(meta *models.PackageMetadata) models.FeatureVector {
	vector := models.NewFeatureVector()
	if meta == nil {
		return vector
	}

	for _, permission := range meta.DeclaredPermissions {
		if idx := models.DangerousPermissionIndex(permission); idx >= 0 {
			vector[idx] = 1
		}
	}

	// Casers are stateful, one per call
	folder := cases.Fold()
	offset := len(models.DangerousPermissions)
	for _, receiver := range meta.RegisteredReceivers {
		name := folder.String(receiver)
		for i, intent := range fe.foldedIntents {
			if strings.Contains(name, intent) {
				vector[offset+i] = 1
			}
		}
	}

	return vector
}
