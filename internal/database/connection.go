// internal/database/connection.go
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lexflow/intake-backend/internal/config"
	"github.com/lexflow/intake-backend/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return DB, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return err
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// AutoMigrate creates the schema. Split out from RunMigrations so the
// sqlite-backed tests can reuse it without the postgres-only pieces.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.IssueCategory{},
		&models.IssueOption{},
		&models.Case{},
		&models.Party{},
		&models.IssueSelection{},
		&models.IssueMetadata{},
		&models.GeneratedDocument{},
		&models.GenerationJob{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Case indexes
		"CREATE INDEX IF NOT EXISTS idx_cases_status_created ON cases(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_cases_contact_email ON cases(contact_email)",

		// Party indexes
		"CREATE INDEX IF NOT EXISTS idx_parties_case_role_ordinal ON parties(case_id, role, ordinal)",
		// Backstop for the single head-of-household invariant. The
		// intake transaction checks it before commit; this index makes
		// a bypassing write fail loudly instead of corrupting a case.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_parties_case_unit_hoh ON parties(case_id, unit_id) WHERE head_of_household AND deleted_at IS NULL",

		// Issue indexes
		"CREATE INDEX IF NOT EXISTS idx_issue_metadata_case_category ON issue_metadata(case_id, category_code)",

		// Document indexes
		"CREATE INDEX IF NOT EXISTS idx_generated_documents_case_status ON generated_documents(case_id, status)",

		// Queue indexes: at most one queued/running generation job per case
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_generation_jobs_case_active ON generation_jobs(case_id) WHERE status IN ('queued', 'running') AND deleted_at IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_generation_jobs_claim ON generation_jobs(status, created_at)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
