package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clubpoint-backend/config"
	"clubpoint-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate creates or updates the schema for every model. Exposed separately
// so tests can migrate an in-memory database.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Machine{},
		&model.Session{},
		&model.Payment{},
		&model.Booking{},
		&model.AuditLog{},
		&model.Employee{},
		&model.Shift{},
		&model.PushSubscription{},
	); err != nil {
		return err
	}

	// One active session per user and per machine, enforced by the schema so
	// a racing pair of transactions cannot both insert. Partial indexes are
	// supported by postgres and sqlite but not by gorm struct tags.
	for _, stmt := range []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_user ON sessions(user_id) WHERE ended_at IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_machine ON sessions(machine_id) WHERE ended_at IS NULL`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create partial index: %w", err)
		}
	}
	return nil
}
