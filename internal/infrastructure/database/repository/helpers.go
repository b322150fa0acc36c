package repository

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"secureguard-lab/internal/domain/models"
)

var (
	// ErrNotFound is returned when a whitelist entry does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidPackageName is returned for an empty package name
	ErrInvalidPackageName = errors.New("invalid package name")
	// ErrInvalidThreat is returned when a threat fails validation on write
	ErrInvalidThreat = errors.New("invalid threat")
)

func validatePackageName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidPackageName
	}
	return nil
}

// validateThreats rejects the whole batch so a replace never half-applies
func validateThreats(threats []models.Threat) error {
	for i, t := range threats {
		if err := validatePackageName(t.PackageName); err != nil {
			return fmt.Errorf("%w: threat %d: %v", ErrInvalidThreat, i, err)
		}
		if !t.RiskLevel.Valid() {
			return fmt.Errorf("%w: threat %d: risk level %q", ErrInvalidThreat, i, t.RiskLevel)
		}
		if !t.ThreatType.Valid() {
			return fmt.Errorf("%w: threat %d: threat type %q", ErrInvalidThreat, i, t.ThreatType)
		}
	}
	return nil
}

// sortForPresentation orders by severity rank then package name; emission
// order breaks any remaining tie.
func sortForPresentation(threats []models.Threat) {
	sort.SliceStable(threats, func(i, j int) bool {
		ri, rj := threats[i].RiskLevel.Rank(), threats[j].RiskLevel.Rank()
		if ri != rj {
			return ri < rj
		}
		return threats[i].PackageName < threats[j].PackageName
	})
}

// threatRow is the flat column layout shared by the SQL stores
type threatRow struct {
	Seq         int
	PackageName string
	AppName     string
	ThreatType  string
	RiskLevel   string
	RiskRank    int
	Description string
	Score       float64
}

func toRow(seq int, t models.Threat) threatRow {
	return threatRow{
		Seq:         seq,
		PackageName: t.PackageName,
		AppName:     t.AppName,
		ThreatType:  string(t.ThreatType),
		RiskLevel:   string(t.RiskLevel),
		RiskRank:    t.RiskLevel.Rank(),
		Description: t.Description,
		Score:       t.Score,
	}
}

func (r threatRow) threat() models.Threat {
	return models.Threat{
		AppName:     r.AppName,
		PackageName: r.PackageName,
		ThreatType:  models.ThreatType(r.ThreatType),
		RiskLevel:   models.RiskLevel(r.RiskLevel),
		Description: r.Description,
		Score:       r.Score,
	}
}

const selectThreatsSQL = `
	SELECT seq, package_name, app_name, threat_type, risk_level, risk_rank, description, score
	FROM threats
	ORDER BY risk_rank ASC, package_name ASC, seq ASC`
