package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemStats holds daily aggregate counts for the dashboard.
type SystemStats struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	Date                 time.Time `gorm:"uniqueIndex;not null" json:"date"`
	TotalItems           int       `gorm:"default:0" json:"total_items"`
	QueuedItems          int       `gorm:"default:0" json:"queued_items"`
	GeneratingItems      int       `gorm:"default:0" json:"generating_items"`
	CompletedItems       int       `gorm:"default:0" json:"completed_items"`
	FailedItems          int       `gorm:"default:0" json:"failed_items"`
	PendingApprovals     int       `gorm:"default:0" json:"pending_approvals"`
	PublishedRecords     int       `gorm:"default:0" json:"published_records"`
	AvgGenerationSeconds float64   `gorm:"default:0" json:"avg_generation_seconds"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ErrorLog records failures and degradations for operator review. Degraded
// non-critical phases land here instead of on the job itself.
type ErrorLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Level      string         `gorm:"size:20;not null;index" json:"level"`
	Source     string         `gorm:"size:100;not null;index" json:"source"`
	Platform   string         `gorm:"size:100;index" json:"platform"`
	QueueID    *string        `gorm:"size:36;index" json:"queue_id"`
	Title      string         `gorm:"size:500;not null" json:"title"`
	Message    string         `gorm:"type:text;not null" json:"message"`
	Context    datatypes.JSON `gorm:"type:jsonb" json:"context"`
	Resolved   bool           `gorm:"default:false;index" json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// MetricsSample is one recorded metric observation.
type MetricsSample struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	MetricName string         `gorm:"size:100;not null;index" json:"metric_name"`
	MetricType string         `gorm:"size:50;not null" json:"metric_type"`
	Value      float64        `gorm:"not null" json:"value"`
	Tags       datatypes.JSON `gorm:"type:jsonb" json:"tags"`
	Timestamp  time.Time      `gorm:"not null;index" json:"timestamp"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
