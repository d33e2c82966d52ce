// Package database provides database connection management for the gexflow
// options analytics pipeline.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - Support for TimescaleDB hypertables and retention policies
//   - Upsert-based repositories keyed on the natural quote identity
//
// Key Concepts:
//   - TimescaleDB hypertables for time-series data optimization
//   - Composite primary keys for hypertable compatibility
//   - ON CONFLICT upserts so re-streamed quotes update in place
//
// Data Models:
//
//	All data models (OptionQuote, GEXMetric, etc.) are defined in the
//	models_pkg package to avoid circular import dependencies.
package database

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "gexflow/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	configurePool(sqlDB)

	return &Database{db: db}, nil
}

// configurePool sizes the connection pool. Each process runs a handful of
// writer goroutines at most, so a small bounded pool is enough.
func configurePool(sqlDB *sql.DB) {
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// Backward Compatibility Type Aliases
// ============================================================================

// These type aliases let callers import everything from the database package
// without reaching into models_pkg directly.

type OptionQuote = models.OptionQuote
type UnderlyingQuote = models.UnderlyingQuote
type GEXMetric = models.GEXMetric
type OptionFlowMetric = models.OptionFlowMetric
type IngestionMetric = models.IngestionMetric
type ServiceUptimeCheck = models.ServiceUptimeCheck
