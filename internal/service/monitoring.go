package service

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/draftline/draftline/internal/models"
)

type MonitoringService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewMonitoringService(db *gorm.DB, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		logger: logger,
	}
}

// RecordError writes an operator-visible error log entry. Degraded
// non-critical phases report here instead of failing their job.
func (m *MonitoringService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	return m.db.Create(errorLog).Error
}

// ErrorLogOption customizes an error log entry.
type ErrorLogOption func(*models.ErrorLog)

// WithPlatform tags the entry with a publishing platform.
func WithPlatform(platform string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.Platform = platform
	}
}

// WithQueueItem links the entry to a queue item.
func WithQueueItem(queueID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.QueueID = &queueID
	}
}

// WithContext attaches structured context to the entry.
func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = datatypes.JSON(contextBytes)
		}
	}
}

// RecordMetric stores one metric observation.
func (m *MonitoringService) RecordMetric(name, metricType string, value float64, tags map[string]interface{}) {
	sample := &models.MetricsSample{
		MetricName: name,
		MetricType: metricType,
		Value:      value,
		Timestamp:  time.Now().UTC(),
	}
	if tags != nil {
		if tagBytes, err := json.Marshal(tags); err == nil {
			sample.Tags = datatypes.JSON(tagBytes)
		}
	}

	if err := m.db.Create(sample).Error; err != nil {
		m.logger.Error("Failed to record metric",
			zap.String("metric", name),
			zap.Error(err))
	}
}

// UpdateSystemStats refreshes today's aggregate row.
func (m *MonitoringService) UpdateSystemStats() error {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var stats models.SystemStats
	result := m.db.Where("date = ?", today).First(&stats)

	var totalItems, queuedItems, generatingItems, completedItems, failedItems int64
	m.db.Model(&models.QueueItem{}).Count(&totalItems)
	m.db.Model(&models.QueueItem{}).Where("status = ?", models.StatusQueued).Count(&queuedItems)
	m.db.Model(&models.QueueItem{}).Where("status = ?", models.StatusGenerating).Count(&generatingItems)
	m.db.Model(&models.QueueItem{}).Where("status IN ?", []models.Status{
		models.StatusGenerated, models.StatusInReview, models.StatusApproved,
		models.StatusScheduled, models.StatusPublishing, models.StatusPublished,
	}).Count(&completedItems)
	m.db.Model(&models.QueueItem{}).Where("status = ?", models.StatusFailed).Count(&failedItems)

	var pendingApprovals int64
	m.db.Model(&models.ApprovalRequest{}).Where("status = ?", models.ApprovalPending).Count(&pendingApprovals)

	var publishedRecords int64
	m.db.Model(&models.PublishingRecord{}).Where("status = ?", models.PublishingPublished).Count(&publishedRecords)

	avgSeconds := m.averageGenerationSeconds()

	if result.Error == gorm.ErrRecordNotFound {
		stats = models.SystemStats{
			Date:                 today,
			TotalItems:           int(totalItems),
			QueuedItems:          int(queuedItems),
			GeneratingItems:      int(generatingItems),
			CompletedItems:       int(completedItems),
			FailedItems:          int(failedItems),
			PendingApprovals:     int(pendingApprovals),
			PublishedRecords:     int(publishedRecords),
			AvgGenerationSeconds: avgSeconds,
		}
		return m.db.Create(&stats).Error
	}

	return m.db.Model(&stats).Updates(map[string]interface{}{
		"total_items":            totalItems,
		"queued_items":           queuedItems,
		"generating_items":       generatingItems,
		"completed_items":        completedItems,
		"failed_items":           failedItems,
		"pending_approvals":      pendingApprovals,
		"published_records":      publishedRecords,
		"avg_generation_seconds": avgSeconds,
	}).Error
}

func (m *MonitoringService) averageGenerationSeconds() float64 {
	var items []models.QueueItem
	if err := m.db.
		Select("id", "generation_started_at", "generation_completed_at").
		Where("generation_started_at IS NOT NULL AND generation_completed_at IS NOT NULL").
		Order("generation_completed_at desc").
		Limit(500).
		Find(&items).Error; err != nil || len(items) == 0 {
		return 0
	}

	var total float64
	for _, item := range items {
		total += item.GenerationCompletedAt.Sub(*item.GenerationStartedAt).Seconds()
	}
	return total / float64(len(items))
}

// CleanupOldData prunes metric samples and resolved error logs older than the
// retention window. Queue items, approvals and publishing records are never
// pruned here.
func (m *MonitoringService) CleanupOldData(retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	if err := m.db.Where("timestamp < ?", cutoff).Delete(&models.MetricsSample{}).Error; err != nil {
		return err
	}
	return m.db.Where("resolved = ? AND created_at < ?", true, cutoff).Delete(&models.ErrorLog{}).Error
}
