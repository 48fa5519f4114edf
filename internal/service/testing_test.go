package service

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/draftline/draftline/internal/models"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// Serialize writers; sqlite locks the whole database anyway
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

var (
	testViewer  = Actor{UserID: "user-viewer", OrgID: "org-1", Role: RoleViewer}
	testEditor  = Actor{UserID: "user-editor", OrgID: "org-1", Role: RoleEditor}
	testManager = Actor{UserID: "user-manager", OrgID: "org-1", Role: RoleManager}
	testOutside = Actor{UserID: "user-outside", OrgID: "org-2", Role: RoleManager}
)

// seedItem inserts a queue item directly in the given status.
func seedItem(t *testing.T, db *gorm.DB, actor Actor, status models.Status) *models.QueueItem {
	t.Helper()

	item := &models.QueueItem{
		ID:              uuid.NewString(),
		OrgID:           actor.OrgID,
		CreatedBy:       actor.UserID,
		Topic:           "How to brew better coffee",
		Keywords:        models.StringArray{"coffee", "brewing"},
		WordCount:       1000,
		Priority:        5,
		Status:          status,
		ProgressUpdates: models.ProgressUpdates{},
	}
	if status != models.StatusQueued && status != models.StatusGenerating {
		item.GeneratedTitle = "Brewing Better Coffee"
		item.GeneratedContent = "Grind fresh, pour slow."
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to seed queue item: %v", err)
	}
	return item
}

func newQueueService(t *testing.T) (*QueueService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewQueueService(db, zap.NewNop()), db
}
