package services

import (
	"context"
	"time"

	"secureguard-lab/internal/detection/model"
	"secureguard-lab/internal/domain/models"
)

// AppRegistry is the installed-application registry of the device
type AppRegistry interface {
	// ListInstalledApplications enumerates installed packages in platform order
	ListInstalledApplications(ctx context.Context) ([]models.InstalledApp, error)

	// PackageMetadata returns declared/granted permissions and receivers of one package
	PackageMetadata(ctx context.Context, packageName string) (*models.PackageMetadata, error)
}

// ThreatStore persists the current threat collection
type ThreatStore interface {
	// ReplaceAll atomically swaps the whole collection
	ReplaceAll(ctx context.Context, threats []models.Threat) error

	// GetAll returns threats ordered by severity rank (High first)
	GetAll(ctx context.Context) ([]models.Threat, error)
}

// WhitelistStore persists user-exempted packages
type WhitelistStore interface {
	Add(ctx context.Context, packageName string) error
	Remove(ctx context.Context, packageName string) error
	GetAll(ctx context.Context) ([]models.WhitelistedApp, error)
}

// ModelOpener opens a risk classifier for one scan session
type ModelOpener interface {
	Open(ctx context.Context) (model.Classifier, error)
}

// Notifier delivers the high-risk alert. Delivery is best-effort.
type Notifier interface {
	NotifyHighRiskThreat(ctx context.Context, threat models.Threat) error
}

// EventPublisher fans out completed scan reports
type EventPublisher interface {
	PublishScanCompleted(ctx context.Context, report *models.ScanReport) error
}

// Locker serializes refreshes across processes sharing one store
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// ReportCache keeps the latest report for cheap reads
type ReportCache interface {
	SetLatestReport(ctx context.Context, report *models.ScanReport) error
}
