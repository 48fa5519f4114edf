package models

import "time"

// ApprovalStatus is the state of one reviewer decision cycle.
type ApprovalStatus string

const (
	ApprovalPending          ApprovalStatus = "pending"
	ApprovalApproved         ApprovalStatus = "approved"
	ApprovalRejected         ApprovalStatus = "rejected"
	ApprovalChangesRequested ApprovalStatus = "changes_requested"
)

// ApprovalRequest is one reviewer decision cycle for a queue item. At most one
// pending request may exist per item; requests are never deleted, even after
// the parent item reaches a terminal state.
type ApprovalRequest struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	QueueID     string         `gorm:"size:36;not null;index" json:"queue_id"`
	OrgID       string         `gorm:"size:36;not null;index" json:"org_id"`
	RequestedBy string         `gorm:"size:36;not null" json:"requested_by"`
	ReviewedBy  *string        `gorm:"size:36" json:"reviewed_by"`
	Status      ApprovalStatus `gorm:"size:50;default:'pending';index" json:"status"`
	Notes       string         `gorm:"type:text" json:"notes"`
	RequestedAt time.Time      `gorm:"autoCreateTime" json:"requested_at"`
	ReviewedAt  *time.Time     `json:"reviewed_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsDecision reports whether a status is a valid reviewer outcome.
func (s ApprovalStatus) IsDecision() bool {
	switch s {
	case ApprovalApproved, ApprovalRejected, ApprovalChangesRequested:
		return true
	default:
		return false
	}
}
