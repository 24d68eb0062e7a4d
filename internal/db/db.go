package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"swaptinsight/internal/config"
)

// ErrDisabled is returned by Connect when no database URL is configured.
var ErrDisabled = errors.New("run history disabled: APP_DATABASE_URL is not set")

// Connect opens the run history database and migrates its tables.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, ErrDisabled
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	// The postgres migrator needs prepared statements, simple protocol fails
	// its column probe with "insufficient arguments".
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, fmt.Errorf("open run history database: %w", err)
	}

	if err := db.AutoMigrate(&RunRecord{}, &DailyRunSummary{}); err != nil {
		return nil, fmt.Errorf("migrate run history tables: %w", err)
	}

	return db, nil
}
