package services

import "secureguard-lab/internal/domain/models"

// ClassifyPermissions tiers an application by its count of granted dangerous
// permissions. ok is false when count is zero, meaning no finding.
func ClassifyPermissions(grantedDangerousCount int) (level models.RiskLevel, ok bool) {
	switch {
	case grantedDangerousCount <= 0:
		return "", false
	case grantedDangerousCount == 1:
		return models.RiskLevelLow, true
	default:
		return models.RiskLevelMedium, true
	}
}
