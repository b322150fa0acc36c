package streaming

import (
	"context"

	"secureguard-lab/internal/domain/models"
)

// EventBusPublisher implements services.EventPublisher and services.Notifier
// on top of the EventBus
type EventBusPublisher struct {
	eventBus *EventBus
}

// NewEventBusPublisher creates a new publisher adapter
func NewEventBusPublisher(eventBus *EventBus) *EventBusPublisher {
	return &EventBusPublisher{eventBus: eventBus}
}

// PublishScanCompleted publishes the scan_completed event for report
func (p *EventBusPublisher) PublishScanCompleted(ctx context.Context, report *models.ScanReport) error {
	if p.eventBus == nil || report == nil {
		return nil
	}
	return p.eventBus.Publish(ctx, NewScanCompletedEvent(report))
}

// NotifyHighRiskThreat publishes the high-risk alert
func (p *EventBusPublisher) NotifyHighRiskThreat(ctx context.Context, threat models.Threat) error {
	if p.eventBus == nil {
		return nil
	}
	return p.eventBus.Publish(ctx, NewHighRiskEvent(threat))
}
