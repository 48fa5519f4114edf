package service

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/draftline/draftline/internal/config"
	"github.com/draftline/draftline/internal/models"
)

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate applies the queue schema. Shared with the sqlite-backed test stores.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.QueueItem{},
		&models.ApprovalRequest{},
		&models.PublishingRecord{},
		&models.WorkflowPhase{},
		&models.PostDraft{},
		&models.Platform{},
		&models.SystemStats{},
		&models.ErrorLog{},
		&models.MetricsSample{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
