package models

import "time"

// PostDraft is the editable draft materialized from generated content. The
// dashboard's editor owns drafts after creation; the queue only records the
// linkage through QueueItem.PostID.
type PostDraft struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	OrgID     string    `gorm:"size:36;not null;index" json:"org_id"`
	QueueID   string    `gorm:"size:36;not null;index" json:"queue_id"`
	Title     string    `gorm:"size:500;not null" json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
