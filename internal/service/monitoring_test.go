package service

import (
	"testing"

	"go.uber.org/zap"

	"github.com/draftline/draftline/internal/models"
)

func TestRecordErrorOptions(t *testing.T) {
	db := newTestDB(t)
	svc := NewMonitoringService(db, zap.NewNop())

	queueID := "queue-1"
	if err := svc.RecordError("WARN", "orchestrator", "Image generation degraded", "timeout",
		WithPlatform("blog"),
		WithQueueItem(queueID),
		WithContext(map[string]interface{}{"attempt": 1}),
	); err != nil {
		t.Fatalf("RecordError failed: %v", err)
	}

	var entry models.ErrorLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("error log not stored: %v", err)
	}
	if entry.Level != "WARN" || entry.Source != "orchestrator" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Platform != "blog" {
		t.Fatalf("platform = %q", entry.Platform)
	}
	if entry.QueueID == nil || *entry.QueueID != queueID {
		t.Fatal("queue linkage missing")
	}
	if len(entry.Context) == 0 {
		t.Fatal("context payload missing")
	}
}

func TestUpdateSystemStats(t *testing.T) {
	db := newTestDB(t)
	svc := NewMonitoringService(db, zap.NewNop())

	seedItem(t, db, testEditor, models.StatusQueued)
	seedItem(t, db, testEditor, models.StatusGenerating)
	seedItem(t, db, testEditor, models.StatusPublished)
	seedItem(t, db, testEditor, models.StatusFailed)

	if err := svc.UpdateSystemStats(); err != nil {
		t.Fatalf("UpdateSystemStats failed: %v", err)
	}

	var stats models.SystemStats
	if err := db.First(&stats).Error; err != nil {
		t.Fatalf("stats row not created: %v", err)
	}
	if stats.TotalItems != 4 || stats.QueuedItems != 1 || stats.GeneratingItems != 1 ||
		stats.CompletedItems != 1 || stats.FailedItems != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	// A second refresh on the same day updates the row in place
	seedItem(t, db, testEditor, models.StatusQueued)
	if err := svc.UpdateSystemStats(); err != nil {
		t.Fatalf("second UpdateSystemStats failed: %v", err)
	}

	var count int64
	if err := db.Model(&models.SystemStats{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count stats rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("stats rows = %d, want 1", count)
	}
	if err := db.First(&stats).Error; err != nil {
		t.Fatalf("failed to reload stats: %v", err)
	}
	if stats.TotalItems != 5 || stats.QueuedItems != 2 {
		t.Fatalf("refreshed stats = %+v", stats)
	}
}
