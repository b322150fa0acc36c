package repository

import (
	"context"
	"sort"
	"sync"

	"secureguard-lab/internal/domain/models"
)

// MemoryThreatRepository keeps threats in process memory
type MemoryThreatRepository struct {
	mu      sync.RWMutex
	threats []models.Threat
}

// NewMemoryThreatRepository creates an empty repository
func NewMemoryThreatRepository() *MemoryThreatRepository {
	return &MemoryThreatRepository{}
}

// ReplaceAll swaps the collection under the write lock
func (r *MemoryThreatRepository) ReplaceAll(_ context.Context, threats []models.Threat) error {
	if err := validateThreats(threats); err != nil {
		return err
	}
	next := append([]models.Threat(nil), threats...)

	r.mu.Lock()
	r.threats = next
	r.mu.Unlock()
	return nil
}

// GetAll returns a copy in presentation order
func (r *MemoryThreatRepository) GetAll(_ context.Context) ([]models.Threat, error) {
	r.mu.RLock()
	out := append([]models.Threat(nil), r.threats...)
	r.mu.RUnlock()

	sortForPresentation(out)
	return out, nil
}

// MemoryWhitelistRepository keeps the whitelist in process memory
type MemoryWhitelistRepository struct {
	mu   sync.RWMutex
	apps map[string]struct{}
}

// NewMemoryWhitelistRepository creates an empty repository
func NewMemoryWhitelistRepository() *MemoryWhitelistRepository {
	return &MemoryWhitelistRepository{apps: make(map[string]struct{})}
}

// Add whitelists packageName; adding twice is a no-op
func (r *MemoryWhitelistRepository) Add(_ context.Context, packageName string) error {
	if err := validatePackageName(packageName); err != nil {
		return err
	}
	r.mu.Lock()
	r.apps[packageName] = struct{}{}
	r.mu.Unlock()
	return nil
}

// Remove deletes packageName, ErrNotFound if absent
func (r *MemoryWhitelistRepository) Remove(_ context.Context, packageName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[packageName]; !ok {
		return ErrNotFound
	}
	delete(r.apps, packageName)
	return nil
}

// GetAll returns whitelisted packages sorted by name
func (r *MemoryWhitelistRepository) GetAll(_ context.Context) ([]models.WhitelistedApp, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.apps))
	for name := range r.apps {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	out := make([]models.WhitelistedApp, len(names))
	for i, name := range names {
		out[i] = models.WhitelistedApp{PackageName: name}
	}
	return out, nil
}
