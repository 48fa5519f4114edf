package models

import (
	"time"

	"gorm.io/datatypes"
)

// Phase identifies one stage of the multi-phase generation pipeline.
type Phase string

const (
	PhaseContent        Phase = "phase_1_content"
	PhaseImages         Phase = "phase_2_images"
	PhaseEnhancement    Phase = "phase_3_enhancement"
	PhaseInterlinking   Phase = "interlinking"
	PhasePublishingPrep Phase = "publishing_preparation"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
)

// PhaseOrder is the execution order of the runnable phases.
var PhaseOrder = []Phase{
	PhaseContent,
	PhaseImages,
	PhaseEnhancement,
	PhaseInterlinking,
	PhasePublishingPrep,
}

// IsCritical reports whether a phase failure fails the whole job. Only the
// content phase is critical; image and enhancement work degrades to an empty
// result instead.
func (p Phase) IsCritical() bool {
	return p == PhaseContent
}

// WorkflowPhase is the persisted cursor for one phase of one queue item. Each
// phase stores its own result so re-invoking a completed phase returns the
// cached artifact instead of redoing external work.
type WorkflowPhase struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	QueueID     string         `gorm:"size:36;not null;index:idx_queue_phase,unique" json:"queue_id"`
	Phase       Phase          `gorm:"size:50;not null;index:idx_queue_phase,unique" json:"phase"`
	Completed   bool           `gorm:"default:false" json:"completed"`
	Degraded    bool           `gorm:"default:false" json:"degraded"`
	Resumable   bool           `gorm:"default:true" json:"resumable"`
	Result      datatypes.JSON `gorm:"type:jsonb" json:"result"`
	Error       string         `gorm:"type:text" json:"error"`
	CompletedAt *time.Time     `json:"completed_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
