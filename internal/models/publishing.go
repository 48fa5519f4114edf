package models

import "time"

// PublishingStatus is the per-platform state of one publishing attempt.
type PublishingStatus string

const (
	PublishingScheduled  PublishingStatus = "scheduled"
	PublishingInProgress PublishingStatus = "publishing"
	PublishingPublished  PublishingStatus = "published"
	PublishingFailed     PublishingStatus = "failed"
)

// PublishingRecord is one platform target for one queue item. Records persist
// for audit even after the parent item reaches a terminal state.
type PublishingRecord struct {
	ID          string           `gorm:"primaryKey;size:36" json:"id"`
	QueueID     string           `gorm:"size:36;not null;index" json:"queue_id"`
	OrgID       string           `gorm:"size:36;not null;index" json:"org_id"`
	Platform    string           `gorm:"size:100;not null;index" json:"platform"`
	Status      PublishingStatus `gorm:"size:50;default:'scheduled';index" json:"status"`
	ExternalID  string           `gorm:"size:255" json:"external_id"`
	URL         string           `gorm:"size:1000" json:"url"`
	Error       string           `gorm:"type:text" json:"error"`
	ScheduledAt *time.Time       `json:"scheduled_at"`
	PublishedAt *time.Time       `json:"published_at"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// Platform is a registered publishing target. Rows are created on first use so
// platforms can be disabled without touching configuration.
type Platform struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	DisplayName string    `gorm:"not null;size:100" json:"display_name"`
	Enabled     bool      `gorm:"default:true" json:"enabled"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AggregatePublishingStatus derives the queue item status implied by a set of
// publishing records. The aggregate is always recomputed from the records,
// never cached: published only when every record is published; publishing
// while any work is in flight or partially done (a single platform failure
// does not mask progress on the others); scheduled otherwise.
func AggregatePublishingStatus(records []PublishingRecord) Status {
	if len(records) == 0 {
		return StatusScheduled
	}

	published := 0
	inProgress := 0
	for _, record := range records {
		switch record.Status {
		case PublishingPublished:
			published++
		case PublishingInProgress:
			inProgress++
		}
	}

	if published == len(records) {
		return StatusPublished
	}
	if inProgress > 0 || published > 0 {
		return StatusPublishing
	}
	return StatusScheduled
}
