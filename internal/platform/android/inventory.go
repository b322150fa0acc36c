// Package android provides installed-application registries for Android
// devices: a YAML inventory snapshot and a live adb-backed registry.
package android

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

// ErrPackageNotFound is returned for metadata of an unknown package
var ErrPackageNotFound = errors.New("package not found")

// InventoryEntry is one application in an inventory file
type InventoryEntry struct {
	models.InstalledApp `yaml:",inline"`

	DeclaredPermissions []string `yaml:"declared_permissions,omitempty"`
	GrantedPermissions  []string `yaml:"granted_permissions,omitempty"`
	RegisteredReceivers []string `yaml:"registered_receivers,omitempty"`
}

// Inventory is the on-disk snapshot of a device's installed applications
type Inventory struct {
	Device       string           `yaml:"device,omitempty"`
	Applications []InventoryEntry `yaml:"applications"`
}

// InventoryRegistry serves a YAML inventory. The file is re-read on every
// call so an updated snapshot is picked up by the next scan.
type InventoryRegistry struct {
	fs     afero.Fs
	path   string
	logger *logger.Logger
}

// NewInventoryRegistry creates a registry over the file at path
func NewInventoryRegistry(fs afero.Fs, path string, log *logger.Logger) *InventoryRegistry {
	return &InventoryRegistry{
		fs:     fs,
		path:   path,
		logger: log.WithComponent("inventory-registry"),
	}
}

func (r *InventoryRegistry) load() (*Inventory, error) {
	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory %s: %w", r.path, err)
	}

	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w", r.path, err)
	}
	for i, app := range inv.Applications {
		if app.PackageName == "" {
			return nil, fmt.Errorf("failed to parse inventory %s: application %d has no package_name", r.path, i)
		}
	}
	return &inv, nil
}

// ListInstalledApplications returns applications in file order
func (r *InventoryRegistry) ListInstalledApplications(_ context.Context) ([]models.InstalledApp, error) {
	inv, err := r.load()
	if err != nil {
		return nil, err
	}

	apps := make([]models.InstalledApp, len(inv.Applications))
	for i, entry := range inv.Applications {
		apps[i] = entry.InstalledApp
	}

	r.logger.Debug().Str("path", r.path).Int("applications", len(apps)).Msg("inventory loaded")
	return apps, nil
}

// PackageMetadata returns the manifest view of one package
func (r *InventoryRegistry) PackageMetadata(_ context.Context, packageName string) (*models.PackageMetadata, error) {
	inv, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, entry := range inv.Applications {
		if entry.PackageName == packageName {
			return &models.PackageMetadata{
				PackageName:         entry.PackageName,
				DeclaredPermissions: entry.DeclaredPermissions,
				GrantedPermissions:  entry.GrantedPermissions,
				RegisteredReceivers: entry.RegisteredReceivers,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, packageName)
}

// Registry is the read side shared by every registry implementation
type Registry interface {
	ListInstalledApplications(ctx context.Context) ([]models.InstalledApp, error)
	PackageMetadata(ctx context.Context, packageName string) (*models.PackageMetadata, error)
}

// Capture reads every application from src and writes a YAML inventory to
// w. Packages whose metadata cannot be read are kept without permissions.
func Capture(ctx context.Context, src Registry, device string, w io.Writer, log *logger.Logger) (int, error) {
	apps, err := src.ListInstalledApplications(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list installed applications: %w", err)
	}

	inv := Inventory{Device: device, Applications: make([]InventoryEntry, 0, len(apps))}
	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		entry := InventoryEntry{InstalledApp: app}
		meta, err := src.PackageMetadata(ctx, app.PackageName)
		if err != nil {
			log.Warn().Err(err).Str("package", app.PackageName).Msg("capturing package without metadata")
		} else {
			entry.DeclaredPermissions = meta.DeclaredPermissions
			entry.GrantedPermissions = meta.GrantedPermissions
			entry.RegisteredReceivers = meta.RegisteredReceivers
		}
		inv.Applications = append(inv.Applications, entry)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&inv); err != nil {
		return 0, fmt.Errorf("failed to write inventory: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("failed to write inventory: %w", err)
	}
	return len(inv.Applications), nil
}
