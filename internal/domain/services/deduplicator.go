package services

import (
	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

// DeduplicateThreats keeps the first threat per package name, preserving order.
// The per-application early exit already guarantees uniqueness, so any
// dropped entry is logged as an error: it means a classification bug.
func DeduplicateThreats(threats []models.Threat, log *logger.Logger) []models.Threat {
	seen := make(map[string]struct{}, len(threats))
	unique := make([]models.Threat, 0, len(threats))

	for _, t := range threats {
		if _, dup := seen[t.PackageName]; dup {
			if log != nil {
				log.Error().
					Str("package", t.PackageName).
					Str("threat_type", string(t.ThreatType)).
					Msg("duplicate threat emitted for package, dropping")
			}
			continue
		}
		seen[t.PackageName] = struct{}{}
		unique = append(unique, t)
	}

	return unique
}
