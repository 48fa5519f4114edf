package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/draftline/draftline/internal/models"
)

// QueueService owns the queue item lifecycle: creation, status transitions,
// retry and the cancel/delete controller. Every status mutation goes through
// the transition table with a conditional update, so a concurrent writer's
// stale precondition fails instead of double-transitioning.
type QueueService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewQueueService(db *gorm.DB, logger *zap.Logger) *QueueService {
	return &QueueService{
		db:     db,
		logger: logger,
	}
}

// WithTx returns a copy of the service bound to the given transaction, so
// callers can commit a status change atomically with their own writes.
func (s *QueueService) WithTx(tx *gorm.DB) *QueueService {
	return &QueueService{db: tx, logger: s.logger}
}

// CreateQueueItemInput carries the request parameters for a new job.
type CreateQueueItemInput struct {
	Topic              string   `json:"topic"`
	Keywords           []string `json:"keywords"`
	TargetAudience     string   `json:"target_audience"`
	Tone               string   `json:"tone"`
	WordCount          int      `json:"word_count"`
	QualityLevel       string   `json:"quality_level"`
	TemplateType       string   `json:"template_type"`
	CustomInstructions string   `json:"custom_instructions"`
	Priority           int      `json:"priority"`
}

func (s *QueueService) Create(ctx context.Context, actor Actor, input CreateQueueItemInput) (*models.QueueItem, error) {
	if !actor.Can(CapabilityQueueCreate) {
		return nil, ErrForbidden
	}
	if input.Topic == "" {
		return nil, Validationf("topic is required")
	}
	if input.Priority == 0 {
		input.Priority = 5
	}
	if input.Priority < 1 || input.Priority > 10 {
		return nil, Validationf("priority must be between 1 and 10, got %d", input.Priority)
	}
	if input.WordCount == 0 {
		input.WordCount = 1000
	}

	item := &models.QueueItem{
		ID:                 uuid.NewString(),
		OrgID:              actor.OrgID,
		CreatedBy:          actor.UserID,
		Topic:              input.Topic,
		Keywords:           models.StringArray(input.Keywords),
		TargetAudience:     input.TargetAudience,
		Tone:               input.Tone,
		WordCount:          input.WordCount,
		QualityLevel:       input.QualityLevel,
		TemplateType:       input.TemplateType,
		CustomInstructions: input.CustomInstructions,
		Priority:           input.Priority,
		Status:             models.StatusQueued,
		ProgressUpdates:    models.ProgressUpdates{},
	}

	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to create queue item: %w", err)
	}

	s.logger.Info("Queue item created",
		zap.String("queue_id", item.ID),
		zap.String("topic", item.Topic),
		zap.Int("priority", item.Priority))

	return item, nil
}

// ListFilter narrows and pages the job listing.
type ListFilter struct {
	Status   *models.Status
	Priority *int
	Limit    int
	Offset   int
}

func (s *QueueService) List(ctx context.Context, actor Actor, filter ListFilter) ([]models.QueueItem, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	query := s.db.WithContext(ctx).Model(&models.QueueItem{}).Where("org_id = ?", actor.OrgID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Priority != nil {
		query = query.Where("priority = ?", *filter.Priority)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count queue items: %w", err)
	}

	var items []models.QueueItem
	if err := query.
		Order("priority asc").
		Order("queued_at asc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list queue items: %w", err)
	}

	return items, total, nil
}

// Get returns one job with its approval and publishing detail nested.
func (s *QueueService) Get(ctx context.Context, actor Actor, id string) (*models.QueueItem, error) {
	var item models.QueueItem
	err := s.db.WithContext(ctx).
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("requested_at asc") }).
		Preload("PublishingRecords", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		First(&item, "id = ? AND org_id = ?", id, actor.OrgID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// getScoped loads a bare item within the actor's org.
func (s *QueueService) getScoped(ctx context.Context, orgID, id string) (*models.QueueItem, error) {
	var item models.QueueItem
	err := s.db.WithContext(ctx).First(&item, "id = ? AND org_id = ?", id, orgID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// load fetches an item by id without org scope, for internal workers.
func (s *QueueService) load(ctx context.Context, id string) (*models.QueueItem, error) {
	var item models.QueueItem
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// UpdateQueueItemInput patches editable request parameters. Status changes go
// through the state machine and are validated server-side, never trusted from
// the caller's target value.
type UpdateQueueItemInput struct {
	Topic              *string  `json:"topic"`
	Keywords           []string `json:"keywords"`
	TargetAudience     *string  `json:"target_audience"`
	Tone               *string  `json:"tone"`
	WordCount          *int     `json:"word_count"`
	QualityLevel       *string  `json:"quality_level"`
	CustomInstructions *string  `json:"custom_instructions"`
	Priority           *int     `json:"priority"`
	GeneratedTitle     *string  `json:"generated_title"`
	GeneratedContent   *string  `json:"generated_content"`
	Status             *string  `json:"status"`
}

func (s *QueueService) Update(ctx context.Context, actor Actor, id string, input UpdateQueueItemInput) (*models.QueueItem, error) {
	item, err := s.getScoped(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}
	if item.CreatedBy != actor.UserID && !actor.Can(CapabilityQueueManage) {
		return nil, ErrForbidden
	}

	updates := map[string]interface{}{}
	if input.Topic != nil {
		updates["topic"] = *input.Topic
	}
	if input.Keywords != nil {
		updates["keywords"] = models.StringArray(input.Keywords)
	}
	if input.TargetAudience != nil {
		updates["target_audience"] = *input.TargetAudience
	}
	if input.Tone != nil {
		updates["tone"] = *input.Tone
	}
	if input.WordCount != nil {
		updates["word_count"] = *input.WordCount
	}
	if input.QualityLevel != nil {
		updates["quality_level"] = *input.QualityLevel
	}
	if input.CustomInstructions != nil {
		updates["custom_instructions"] = *input.CustomInstructions
	}
	if input.Priority != nil {
		if *input.Priority < 1 || *input.Priority > 10 {
			return nil, Validationf("priority must be between 1 and 10, got %d", *input.Priority)
		}
		updates["priority"] = *input.Priority
	}
	if input.GeneratedTitle != nil {
		updates["generated_title"] = *input.GeneratedTitle
	}
	if input.GeneratedContent != nil {
		updates["generated_content"] = *input.GeneratedContent
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.QueueItem{}).
			Where("id = ?", item.ID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update queue item: %w", err)
		}
	}

	if input.Status != nil {
		target, ok := models.ParseStatus(*input.Status)
		if !ok {
			return nil, Validationf("unknown status %q", *input.Status)
		}
		if _, err := s.Transition(ctx, item.ID, target); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, actor, id)
}

// Transition commits a status change after checking the transition table.
// Entering generating stamps generation_started_at only if unset; entering
// generated stamps generation_completed_at only if unset and triggers draft
// materialization. Repeated transitions into the current status are no-ops
// and never touch the timestamps, except generating: re-entering it is
// rejected so a writer that lost the claim race cannot mistake the no-op for
// its own successful claim.
func (s *QueueService) Transition(ctx context.Context, id string, to models.Status) (*models.QueueItem, error) {
	return s.transition(ctx, id, to, "")
}

// Fail transitions the item to failed and records the readable error the
// dashboard shows next to the retry action.
func (s *QueueService) Fail(ctx context.Context, id string, message string) (*models.QueueItem, error) {
	return s.transition(ctx, id, models.StatusFailed, message)
}

func (s *QueueService) transition(ctx context.Context, id string, to models.Status, failureMessage string) (*models.QueueItem, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	from := item.Status
	if !models.CanTransition(from, to) {
		return nil, &InvalidTransitionError{From: from, To: to}
	}
	if from == to {
		return item, nil
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"status": to}
	if to == models.StatusGenerating && item.GenerationStartedAt == nil {
		updates["generation_started_at"] = now
	}
	if to == models.StatusGenerated && item.GenerationCompletedAt == nil {
		updates["generation_completed_at"] = now
	}
	if to == models.StatusFailed && failureMessage != "" {
		updates["generation_error"] = failureMessage
	}

	// Status is the lock: a concurrent transition changes the row first and
	// this predicate then matches nothing.
	res := s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to commit status transition: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidTransitionError{From: current.Status, To: to}
	}

	s.logger.Info("Queue item transitioned",
		zap.String("queue_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	item, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if to == models.StatusGenerated {
		s.materializeDraft(ctx, item)
		// Reload so callers observe a freshly-set post_id
		item, err = s.load(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	return item, nil
}

// materializeDraft creates the editable draft once generated content and
// title are both present. Best effort: a failure is logged and does not roll
// back the status transition. post_id is set at most once and never cleared.
func (s *QueueService) materializeDraft(ctx context.Context, item *models.QueueItem) {
	if item.PostID != nil || item.GeneratedContent == "" || item.GeneratedTitle == "" {
		return
	}

	draft := &models.PostDraft{
		ID:      uuid.NewString(),
		OrgID:   item.OrgID,
		QueueID: item.ID,
		Title:   item.GeneratedTitle,
		Content: item.GeneratedContent,
	}
	if err := s.db.WithContext(ctx).Create(draft).Error; err != nil {
		s.logger.Error("Failed to materialize draft",
			zap.String("queue_id", item.ID),
			zap.Error(err))
		return
	}

	res := s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ? AND post_id IS NULL", item.ID).
		Update("post_id", draft.ID)
	if res.Error != nil {
		s.logger.Error("Failed to link draft to queue item",
			zap.String("queue_id", item.ID),
			zap.String("post_id", draft.ID),
			zap.Error(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		// Another writer linked a draft first; keep the original linkage.
		s.logger.Warn("Draft already linked, discarding duplicate",
			zap.String("queue_id", item.ID),
			zap.String("post_id", draft.ID))
		return
	}

	s.logger.Info("Draft materialized",
		zap.String("queue_id", item.ID),
		zap.String("post_id", draft.ID))
}

// Retry resets a failed job back to queued. Only the creator or a
// manager-tier caller may retry, and only from failed.
func (s *QueueService) Retry(ctx context.Context, actor Actor, id string) (*models.QueueItem, error) {
	if !actor.Can(CapabilityQueueRetry) {
		return nil, ErrForbidden
	}

	item, err := s.getScoped(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}
	if item.CreatedBy != actor.UserID && !actor.Can(CapabilityQueueManage) {
		return nil, ErrForbidden
	}
	if item.Status != models.StatusFailed {
		return nil, &RetryStateError{Status: item.Status}
	}

	res := s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, models.StatusFailed).
		Updates(map[string]interface{}{
			"status":                  models.StatusQueued,
			"progress_percentage":     0,
			"current_stage":           "",
			"generation_error":        "",
			"generation_started_at":   nil,
			"generation_completed_at": nil,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to retry queue item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := s.getScoped(ctx, actor.OrgID, id)
		if err != nil {
			return nil, err
		}
		return nil, &RetryStateError{Status: current.Status}
	}

	// Stale phase cursors would short-circuit the rerun with cached results.
	if err := s.db.WithContext(ctx).Where("queue_id = ?", id).Delete(&models.WorkflowPhase{}).Error; err != nil {
		s.logger.Error("Failed to clear phase state on retry",
			zap.String("queue_id", id),
			zap.Error(err))
	}

	s.logger.Info("Queue item retried", zap.String("queue_id", id))

	return s.getScoped(ctx, actor.OrgID, id)
}

// DeleteOutcome says which branch of the cancellation policy ran.
type DeleteOutcome string

const (
	OutcomeDeleted   DeleteOutcome = "deleted"
	OutcomeCancelled DeleteOutcome = "cancelled"
)

// Delete applies the three-way cancellation policy: published items are never
// deleted (audit trail), failed and cancelled items are removed permanently,
// and anything still in flight is soft-cancelled in place.
func (s *QueueService) Delete(ctx context.Context, actor Actor, id string) (DeleteOutcome, error) {
	if !actor.Can(CapabilityQueueCancel) {
		return "", ErrForbidden
	}

	item, err := s.getScoped(ctx, actor.OrgID, id)
	if err != nil {
		return "", err
	}
	if item.CreatedBy != actor.UserID && !actor.Can(CapabilityQueueManage) {
		return "", ErrForbidden
	}

	switch item.Status {
	case models.StatusPublished:
		return "", ErrForbidden
	case models.StatusFailed, models.StatusCancelled:
		// Never produced usable output; approvals and publishing records
		// are retained independently for audit.
		if err := s.db.WithContext(ctx).Delete(&models.QueueItem{}, "id = ?", id).Error; err != nil {
			return "", fmt.Errorf("failed to delete queue item: %w", err)
		}
		if err := s.db.WithContext(ctx).Where("queue_id = ?", id).Delete(&models.WorkflowPhase{}).Error; err != nil {
			s.logger.Error("Failed to clear phase state on delete",
				zap.String("queue_id", id),
				zap.Error(err))
		}
		s.logger.Info("Queue item deleted", zap.String("queue_id", id))
		return OutcomeDeleted, nil
	default:
		if _, err := s.Transition(ctx, id, models.StatusCancelled); err != nil {
			return "", err
		}
		s.logger.Info("Queue item cancelled", zap.String("queue_id", id))
		return OutcomeCancelled, nil
	}
}

// QueueStats is the aggregate dashboard view of the queue.
type QueueStats struct {
	Total                int64                   `json:"total"`
	ByStatus             map[models.Status]int64 `json:"by_status"`
	Last24h              int64                   `json:"last_24h"`
	AvgGenerationSeconds float64                 `json:"avg_generation_seconds"`
}

func (s *QueueService) Stats(ctx context.Context, actor Actor) (*QueueStats, error) {
	if !actor.Can(CapabilityStatsRead) {
		return nil, ErrForbidden
	}

	stats := &QueueStats{ByStatus: make(map[models.Status]int64)}

	type statusCount struct {
		Status models.Status
		Count  int64
	}
	var counts []statusCount
	if err := s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Select("status, count(*) as count").
		Where("org_id = ?", actor.OrgID).
		Group("status").
		Find(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
		stats.Total += c.Count
	}

	if err := s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("org_id = ? AND queued_at >= ?", actor.OrgID, time.Now().UTC().Add(-24*time.Hour)).
		Count(&stats.Last24h).Error; err != nil {
		return nil, fmt.Errorf("failed to count recent items: %w", err)
	}

	// Average over recent completions, computed here so the query stays
	// portable across the postgres and sqlite backends.
	var completed []models.QueueItem
	if err := s.db.WithContext(ctx).
		Select("id", "generation_started_at", "generation_completed_at").
		Where("org_id = ? AND generation_started_at IS NOT NULL AND generation_completed_at IS NOT NULL", actor.OrgID).
		Order("generation_completed_at desc").
		Limit(500).
		Find(&completed).Error; err != nil {
		return nil, fmt.Errorf("failed to load completed items: %w", err)
	}
	if len(completed) > 0 {
		var totalSeconds float64
		for _, item := range completed {
			totalSeconds += item.GenerationCompletedAt.Sub(*item.GenerationStartedAt).Seconds()
		}
		stats.AvgGenerationSeconds = totalSeconds / float64(len(completed))
	}

	return stats, nil
}

// NextQueued claims up to limit runnable items, highest priority first. Used
// by the background worker; claiming happens implicitly when phase 1 wins the
// queued -> generating transition.
func (s *QueueService) NextQueued(ctx context.Context, limit int) ([]models.QueueItem, error) {
	var items []models.QueueItem
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusQueued).
		Order("priority asc").
		Order("queued_at asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load queued items: %w", err)
	}
	return items, nil
}
