package services

import "secureguard-lab/internal/domain/models"

// Posture weights per finding
const (
	postureHighPenalty   = 15
	postureMediumPenalty = 5
	postureLowPenalty    = 2
)

// ComputePosture folds a threat list into the device security score
func ComputePosture(threats []models.Threat) models.SecurityPosture {
	var p models.SecurityPosture
	for _, t := range threats {
		switch t.RiskLevel {
		case models.RiskLevelHigh:
			p.HighCount++
		case models.RiskLevelMedium:
			p.MediumCount++
		case models.RiskLevelLow:
			p.LowCount++
		}
	}

	score := 100 - postureHighPenalty*p.HighCount - postureMediumPenalty*p.MediumCount - postureLowPenalty*p.LowCount
	p.Score = max(0, min(100, score))
	p.Label = postureLabel(p.Score)
	return p
}

func postureLabel(score int) string {
	switch {
	case score >= 90:
		return "Device is Secure"
	case score >= 60:
		return "Low Risk"
	case score >= 40:
		return "Medium Risk"
	default:
		return "High Risk"
	}
}
