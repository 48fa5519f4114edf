package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StringArray represents a PostgreSQL text[] type
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		// Handle PostgreSQL array format: {value1,value2,value3}
		if v == "{}" || v == "" {
			*s = StringArray{}
			return nil
		}

		// Remove outer braces and split by comma
		trimmed := strings.Trim(v, "{}")
		if trimmed == "" {
			*s = StringArray{}
			return nil
		}

		parts := strings.Split(trimmed, ",")
		result := make([]string, len(parts))
		for i, part := range parts {
			// Remove quotes if present
			result[i] = strings.Trim(strings.TrimSpace(part), "\"")
		}
		*s = result
		return nil
	case []byte:
		// Try to parse as JSON first
		var arr []string
		if err := json.Unmarshal(v, &arr); err == nil {
			*s = arr
			return nil
		}
		// Fallback to string parsing
		return s.Scan(string(v))
	default:
		return errors.New(fmt.Sprintf("cannot scan %T into StringArray", value))
	}
}

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}

	// Format as PostgreSQL array: {value1,value2,value3}
	quoted := make([]string, len(s))
	for i, v := range s {
		// Escape quotes and wrap in quotes
		escaped := strings.ReplaceAll(v, "\"", "\\\"")
		quoted[i] = fmt.Sprintf("\"%s\"", escaped)
	}

	return fmt.Sprintf("{%s}", strings.Join(quoted, ",")), nil
}

// ProgressUpdate is one append-only stage event in a queue item's timeline.
// Events are never reordered, rewritten or deduplicated at write time; any
// most-recent-per-stage collapsing is a presentation concern.
type ProgressUpdate struct {
	Stage              string    `json:"stage"`
	StageNumber        int       `json:"stage_number,omitempty"`
	ProgressPercentage int       `json:"progress_percentage"`
	Details            string    `json:"details,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// ProgressUpdates is stored as a single JSON list on the queue item row; it is
// not independently queryable.
type ProgressUpdates []ProgressUpdate

// ContentResult is the phase 1 artifact.
type ContentResult struct {
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt,omitempty"`
	WordCount int    `json:"word_count,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

// ImageResult is the phase 2 artifact. A missing result with
// image_generated=false on the parent metadata marks a degraded phase.
type ImageResult struct {
	URL          string  `json:"url,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	QualityScore float64 `json:"quality_score,omitempty"`
}

// EnhancementResult is the phase 3 artifact.
type EnhancementResult struct {
	Applied bool   `json:"applied"`
	Details string `json:"details,omitempty"`
}

// InternalLink is one suggested cross-reference to an existing draft.
type InternalLink struct {
	PostID string `json:"post_id"`
	Title  string `json:"title"`
}

// InterlinkingResult is the interlinking phase artifact.
type InterlinkingResult struct {
	Links []InternalLink `json:"links,omitempty"`
}

// PublishingPrepResult is the publishing-preparation phase artifact.
type PublishingPrepResult struct {
	Slug    string    `json:"slug"`
	Excerpt string    `json:"excerpt,omitempty"`
	Tags    []string  `json:"tags,omitempty"`
	ReadyAt time.Time `json:"ready_at"`
}

// GenerationMetadata collects the per-phase artifacts under named fields, one
// per phase, instead of a shared untyped map.
type GenerationMetadata struct {
	Content        *ContentResult        `json:"content,omitempty"`
	Image          *ImageResult          `json:"image,omitempty"`
	Enhancement    *EnhancementResult    `json:"enhancement,omitempty"`
	Interlinking   *InterlinkingResult   `json:"interlinking,omitempty"`
	PublishingPrep *PublishingPrepResult `json:"publishing_prep,omitempty"`
	ImageGenerated bool                  `json:"image_generated"`
}

// QueueItem is one blog generation job and its lifecycle state.
type QueueItem struct {
	ID                 string      `gorm:"primaryKey;size:36" json:"id"`
	OrgID              string      `gorm:"size:36;not null;index" json:"org_id"`
	CreatedBy          string      `gorm:"size:36;not null;index" json:"created_by"`
	Topic              string      `gorm:"size:500;not null" json:"topic"`
	Keywords           StringArray `gorm:"type:text[]" json:"keywords"`
	TargetAudience     string      `gorm:"size:255" json:"target_audience"`
	Tone               string      `gorm:"size:100" json:"tone"`
	WordCount          int         `gorm:"default:1000" json:"word_count"`
	QualityLevel       string      `gorm:"size:50" json:"quality_level"`
	TemplateType       string      `gorm:"size:100" json:"template_type"`
	CustomInstructions string      `gorm:"type:text" json:"custom_instructions"`
	// Priority 1-10, lower runs first
	Priority int `gorm:"default:5;index" json:"priority"`

	Status             Status              `gorm:"size:50;default:'queued';index" json:"status"`
	ProgressPercentage int                 `gorm:"default:0" json:"progress_percentage"`
	CurrentStage       string              `gorm:"size:255" json:"current_stage"`
	ProgressUpdates    ProgressUpdates     `gorm:"type:jsonb;serializer:json" json:"progress_updates"`
	GeneratedTitle     string              `gorm:"size:500" json:"generated_title"`
	GeneratedContent   string              `gorm:"type:text" json:"generated_content"`
	GenerationMetadata *GenerationMetadata `gorm:"type:jsonb;serializer:json" json:"generation_metadata"`
	GenerationError    string              `gorm:"type:text" json:"generation_error"`

	// PostID links the materialized editable draft; set at most once, never cleared.
	PostID *string `gorm:"size:36" json:"post_id"`

	QueuedAt              time.Time  `gorm:"autoCreateTime" json:"queued_at"`
	GenerationStartedAt   *time.Time `json:"generation_started_at"`
	GenerationCompletedAt *time.Time `json:"generation_completed_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Approvals         []ApprovalRequest  `gorm:"foreignKey:QueueID" json:"approvals,omitempty"`
	PublishingRecords []PublishingRecord `gorm:"foreignKey:QueueID" json:"publishing_records,omitempty"`
}

// Metadata returns the metadata payload, allocating it on first use.
func (q *QueueItem) Metadata() *GenerationMetadata {
	if q.GenerationMetadata == nil {
		q.GenerationMetadata = &GenerationMetadata{}
	}
	return q.GenerationMetadata
}
