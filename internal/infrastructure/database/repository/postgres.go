package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/internal/infrastructure/database"
)

// PostgresThreatRepository handles threat persistence on the server store
type PostgresThreatRepository struct {
	db *database.PostgresDB
}

// NewPostgresThreatRepository creates a new threat repository
func NewPostgresThreatRepository(db *database.PostgresDB) *PostgresThreatRepository {
	return &PostgresThreatRepository{db: db}
}

var threatColumns = []string{
	"seq", "package_name", "app_name", "threat_type", "risk_level", "risk_rank", "description", "score",
}

// ReplaceAll deletes and bulk-copies the collection in one transaction
func (r *PostgresThreatRepository) ReplaceAll(ctx context.Context, threats []models.Threat) error {
	if err := validateThreats(threats); err != nil {
		return err
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM threats`); err != nil {
			return fmt.Errorf("failed to clear threats: %w", err)
		}
		if len(threats) == 0 {
			return nil
		}

		n, err := tx.CopyFrom(ctx, pgx.Identifier{"threats"}, threatColumns,
			pgx.CopyFromSlice(len(threats), func(i int) ([]any, error) {
				row := toRow(i, threats[i])
				return []any{
					row.Seq, row.PackageName, row.AppName, row.ThreatType,
					row.RiskLevel, row.RiskRank, row.Description, row.Score,
				}, nil
			}))
		if err != nil {
			return fmt.Errorf("failed to copy threats: %w", err)
		}
		if int(n) != len(threats) {
			return fmt.Errorf("failed to copy threats: wrote %d of %d", n, len(threats))
		}
		return nil
	})
}

// GetAll returns threats in presentation order
func (r *PostgresThreatRepository) GetAll(ctx context.Context) ([]models.Threat, error) {
	rows, err := r.db.Pool().Query(ctx, selectThreatsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query threats: %w", err)
	}

	threats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Threat, error) {
		var tr threatRow
		err := row.Scan(
			&tr.Seq, &tr.PackageName, &tr.AppName, &tr.ThreatType,
			&tr.RiskLevel, &tr.RiskRank, &tr.Description, &tr.Score,
		)
		return tr.threat(), err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan threats: %w", err)
	}

	return threats, nil
}

// PostgresWhitelistRepository handles whitelist persistence on the server store
type PostgresWhitelistRepository struct {
	db *database.PostgresDB
}

// NewPostgresWhitelistRepository creates a new whitelist repository
func NewPostgresWhitelistRepository(db *database.PostgresDB) *PostgresWhitelistRepository {
	return &PostgresWhitelistRepository{db: db}
}

// Add whitelists packageName; adding twice is a no-op
func (r *PostgresWhitelistRepository) Add(ctx context.Context, packageName string) error {
	if err := validatePackageName(packageName); err != nil {
		return err
	}
	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO whitelisted_apps (package_name) VALUES ($1) ON CONFLICT (package_name) DO NOTHING`,
		packageName)
	if err != nil {
		return fmt.Errorf("failed to whitelist %s: %w", packageName, err)
	}
	return nil
}

// Remove deletes packageName, ErrNotFound if absent
func (r *PostgresWhitelistRepository) Remove(ctx context.Context, packageName string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM whitelisted_apps WHERE package_name = $1`, packageName)
	if err != nil {
		return fmt.Errorf("failed to remove %s from whitelist: %w", packageName, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAll returns whitelisted packages sorted by name
func (r *PostgresWhitelistRepository) GetAll(ctx context.Context) ([]models.WhitelistedApp, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT package_name FROM whitelisted_apps ORDER BY package_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query whitelist: %w", err)
	}

	apps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.WhitelistedApp, error) {
		var app models.WhitelistedApp
		err := row.Scan(&app.PackageName)
		return app, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan whitelist: %w", err)
	}
	return apps, nil
}
