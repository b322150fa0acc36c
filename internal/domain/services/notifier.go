package services

import (
	"context"
	"errors"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

// LogNotifier writes high-risk alerts to the structured log. It is the
// fallback channel when no event bus is configured.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.WithComponent("notifier")}
}

// NotifyHighRiskThreat logs the alert
func (n *LogNotifier) NotifyHighRiskThreat(_ context.Context, threat models.Threat) error {
	note := models.NewHighRiskNotification(threat)
	n.logger.Warn().
		Str("title", note.Title).
		Str("text", note.Text).
		Str("package", note.PackageName).
		Str("threat_type", string(threat.ThreatType)).
		Msg(note.Body)
	return nil
}

// MultiNotifier fans one alert out to several channels
type MultiNotifier []Notifier

// NotifyHighRiskThreat delivers to every channel and joins the failures
func (m MultiNotifier) NotifyHighRiskThreat(ctx context.Context, threat models.Threat) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyHighRiskThreat(ctx, threat); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
