package repository

import (
	"context"
	"database/sql"
	"fmt"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/internal/infrastructure/database"
)

// SQLiteThreatRepository persists threats in the on-device database
type SQLiteThreatRepository struct {
	db *database.SQLiteDB
}

// NewSQLiteThreatRepository creates a new SQLite threat repository
func NewSQLiteThreatRepository(db *database.SQLiteDB) *SQLiteThreatRepository {
	return &SQLiteThreatRepository{db: db}
}

// ReplaceAll deletes and re-inserts the collection in one transaction
func (r *SQLiteThreatRepository) ReplaceAll(ctx context.Context, threats []models.Threat) error {
	if err := validateThreats(threats); err != nil {
		return err
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM threats`); err != nil {
			return fmt.Errorf("failed to clear threats: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO threats (seq, package_name, app_name, threat_type, risk_level, risk_rank, description, score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare threat insert: %w", err)
		}
		defer stmt.Close()

		for i, t := range threats {
			row := toRow(i, t)
			if _, err := stmt.ExecContext(ctx,
				row.Seq, row.PackageName, row.AppName, row.ThreatType,
				row.RiskLevel, row.RiskRank, row.Description, row.Score,
			); err != nil {
				return fmt.Errorf("failed to insert threat for %s: %w", t.PackageName, err)
			}
		}
		return nil
	})
}

// GetAll returns threats in presentation order
func (r *SQLiteThreatRepository) GetAll(ctx context.Context) ([]models.Threat, error) {
	rows, err := r.db.DB().QueryContext(ctx, selectThreatsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query threats: %w", err)
	}
	defer rows.Close()

	threats := make([]models.Threat, 0)
	for rows.Next() {
		var row threatRow
		if err := rows.Scan(
			&row.Seq, &row.PackageName, &row.AppName, &row.ThreatType,
			&row.RiskLevel, &row.RiskRank, &row.Description, &row.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan threat: %w", err)
		}
		threats = append(threats, row.threat())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threats: %w", err)
	}

	return threats, nil
}

// SQLiteWhitelistRepository persists the whitelist in the on-device database
type SQLiteWhitelistRepository struct {
	db *database.SQLiteDB
}

// NewSQLiteWhitelistRepository creates a new SQLite whitelist repository
func NewSQLiteWhitelistRepository(db *database.SQLiteDB) *SQLiteWhitelistRepository {
	return &SQLiteWhitelistRepository{db: db}
}

// Add whitelists packageName; adding twice is a no-op
func (r *SQLiteWhitelistRepository) Add(ctx context.Context, packageName string) error {
	if err := validatePackageName(packageName); err != nil {
		return err
	}
	_, err := r.db.DB().ExecContext(ctx,
		`INSERT INTO whitelisted_apps (package_name) VALUES (?) ON CONFLICT(package_name) DO NOTHING`,
		packageName)
	if err != nil {
		return fmt.Errorf("failed to whitelist %s: %w", packageName, err)
	}
	return nil
}

// Remove deletes packageName, ErrNotFound if absent
func (r *SQLiteWhitelistRepository) Remove(ctx context.Context, packageName string) error {
	res, err := r.db.DB().ExecContext(ctx, `DELETE FROM whitelisted_apps WHERE package_name = ?`, packageName)
	if err != nil {
		return fmt.Errorf("failed to remove %s from whitelist: %w", packageName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove %s from whitelist: %w", packageName, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAll returns whitelisted packages sorted by name
func (r *SQLiteWhitelistRepository) GetAll(ctx context.Context) ([]models.WhitelistedApp, error) {
	rows, err := r.db.DB().QueryContext(ctx, `SELECT package_name FROM whitelisted_apps ORDER BY package_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query whitelist: %w", err)
	}
	defer rows.Close()

	apps := make([]models.WhitelistedApp, 0)
	for rows.Next() {
		var app models.WhitelistedApp
		if err := rows.Scan(&app.PackageName); err != nil {
			return nil, fmt.Errorf("failed to scan whitelist entry: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
