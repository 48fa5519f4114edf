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

// ApprovalService runs the reviewer decision cycle. At most one pending
// request exists per queue item, and a reviewer never decides on their own
// request.
type ApprovalService struct {
	db     *gorm.DB
	logger *zap.Logger
	queue  *QueueService
}

func NewApprovalService(db *gorm.DB, logger *zap.Logger, queue *QueueService) *ApprovalService {
	return &ApprovalService{
		db:     db,
		logger: logger,
		queue:  queue,
	}
}

// Request opens a review cycle on a generated item and moves it to in_review.
func (s *ApprovalService) Request(ctx context.Context, actor Actor, queueID, notes string) (*models.ApprovalRequest, error) {
	if !actor.Can(CapabilityApprovalRequest) {
		return nil, ErrForbidden
	}

	item, err := s.queue.getScoped(ctx, actor.OrgID, queueID)
	if err != nil {
		return nil, err
	}
	if item.Status != models.StatusGenerated {
		return nil, &InvalidTransitionError{From: item.Status, To: models.StatusInReview}
	}

	var pending int64
	if err := s.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("queue_id = ? AND status = ?", queueID, models.ApprovalPending).
		Count(&pending).Error; err != nil {
		return nil, fmt.Errorf("failed to check pending approvals: %w", err)
	}
	if pending > 0 {
		return nil, ErrConflictingApproval
	}

	request := &models.ApprovalRequest{
		ID:          uuid.NewString(),
		QueueID:     queueID,
		OrgID:       actor.OrgID,
		RequestedBy: actor.UserID,
		Status:      models.ApprovalPending,
		Notes:       notes,
	}

	// The generated -> in_review precondition also backstops a request race:
	// the second writer's transition fails and the rollback withdraws its
	// request.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(request).Error; err != nil {
			return fmt.Errorf("failed to create approval request: %w", err)
		}
		_, err := s.queue.WithTx(tx).Transition(ctx, queueID, models.StatusInReview)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval requested",
		zap.String("queue_id", queueID),
		zap.String("approval_id", request.ID),
		zap.String("requested_by", actor.UserID))

	return request, nil
}

// Decide resolves a pending request and advances the item accordingly:
// approved moves it toward scheduling, rejected parks it for regeneration, and
// changes_requested sends it back to generated for edits.
func (s *ApprovalService) Decide(ctx context.Context, actor Actor, approvalID string, decision models.ApprovalStatus, notes string) (*models.ApprovalRequest, error) {
	if !decision.IsDecision() {
		return nil, Validationf("invalid approval decision %q", decision)
	}
	if !actor.Can(CapabilityApprovalDecide) {
		return nil, ErrForbidden
	}

	var request models.ApprovalRequest
	err := s.db.WithContext(ctx).
		First(&request, "id = ? AND org_id = ?", approvalID, actor.OrgID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if request.RequestedBy == actor.UserID {
		// Self-approval is off the table regardless of role.
		return nil, ErrForbidden
	}
	if request.Status != models.ApprovalPending {
		return nil, ErrConflictingApproval
	}

	var target models.Status
	switch decision {
	case models.ApprovalApproved:
		target = models.StatusApproved
	case models.ApprovalRejected:
		target = models.StatusRejected
	case models.ApprovalChangesRequested:
		target = models.StatusGenerated
	}

	// The decision row and the item's status advance together: if the
	// transition is rejected the rollback leaves the request pending.
	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ApprovalRequest{}).
			Where("id = ? AND status = ?", approvalID, models.ApprovalPending).
			Updates(map[string]interface{}{
				"status":      decision,
				"reviewed_by": actor.UserID,
				"reviewed_at": now,
				"notes":       notes,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to record approval decision: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflictingApproval
		}
		_, err := s.queue.WithTx(tx).Transition(ctx, request.QueueID, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval decided",
		zap.String("queue_id", request.QueueID),
		zap.String("approval_id", approvalID),
		zap.String("decision", string(decision)),
		zap.String("reviewed_by", actor.UserID))

	if err := s.db.WithContext(ctx).First(&request, "id = ?", approvalID).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// ListForQueue returns the full review history of one item, oldest first.
func (s *ApprovalService) ListForQueue(ctx context.Context, actor Actor, queueID string) ([]models.ApprovalRequest, error) {
	if _, err := s.queue.getScoped(ctx, actor.OrgID, queueID); err != nil {
		return nil, err
	}

	var requests []models.ApprovalRequest
	if err := s.db.WithContext(ctx).
		Where("queue_id = ?", queueID).
		Order("requested_at asc").
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return requests, nil
}
