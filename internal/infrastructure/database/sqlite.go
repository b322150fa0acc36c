package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"secureguard-lab/internal/config"
	"secureguard-lab/pkg/logger"
)

// SQLiteDB is the on-device store
type SQLiteDB struct {
	db     *sql.DB
	path   string
	logger *logger.Logger
}

// NewSQLite opens (and creates) the database file at cfg.Path
func NewSQLite(ctx context.Context, cfg config.SQLiteConfig, log *logger.Logger) (*SQLiteDB, error) {
	log = log.WithComponent("sqlite")

	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single writer keeps transactions from tripping SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	log.Info().Str("path", cfg.Path).Msg("opened SQLite database")

	return &SQLiteDB{db: db, path: cfg.Path, logger: log}, nil
}

// DB returns the underlying handle
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *SQLiteDB) Close() error {
	s.logger.Info().Msg("closing SQLite database")
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the threat and whitelist tables if missing
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// WithTx executes a function within a transaction
func (s *SQLiteDB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS threats (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		seq          INTEGER NOT NULL,
		package_name TEXT NOT NULL,
		app_name     TEXT NOT NULL,
		threat_type  TEXT NOT NULL,
		risk_level   TEXT NOT NULL,
		risk_rank    INTEGER NOT NULL,
		description  TEXT NOT NULL,
		score        REAL NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_threats_rank ON threats (risk_rank, package_name)`,
	`CREATE TABLE IF NOT EXISTS whitelisted_apps (
		package_name TEXT PRIMARY KEY,
		added_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}
