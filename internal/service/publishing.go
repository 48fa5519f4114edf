package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/draftline/draftline/internal/config"
	"github.com/draftline/draftline/internal/models"
)

// PublishOutcome is what a platform reports back after accepting content.
type PublishOutcome struct {
	ExternalID string
	URL        string
}

// PlatformPublisher delivers one item to one publishing platform.
type PlatformPublisher interface {
	Name() string
	Publish(ctx context.Context, item *models.QueueItem) (*PublishOutcome, error)
}

// PublishingService fans an approved item out to its target platforms. Each
// platform gets an independent record; the item's own status is always
// recomputed from the records, never cached.
type PublishingService struct {
	db         *gorm.DB
	logger     *zap.Logger
	queue      *QueueService
	monitoring *MonitoringService
	publishers map[string]PlatformPublisher
}

func NewPublishingService(db *gorm.DB, logger *zap.Logger, queue *QueueService, monitoring *MonitoringService) *PublishingService {
	return &PublishingService{
		db:         db,
		logger:     logger,
		queue:      queue,
		monitoring: monitoring,
		publishers: make(map[string]PlatformPublisher),
	}
}

// RegisterPublisher adds a platform implementation. Duplicate names are a
// wiring mistake and rejected.
func (s *PublishingService) RegisterPublisher(p PlatformPublisher) error {
	if _, exists := s.publishers[p.Name()]; exists {
		return fmt.Errorf("publisher %s already registered", p.Name())
	}
	s.publishers[p.Name()] = p
	s.logger.Info("Registered publisher", zap.String("platform", p.Name()))
	return nil
}

// PublishInput selects the platforms and optional future publish time.
type PublishInput struct {
	Platforms   []string   `json:"platforms"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// Publish schedules an approved item onto the requested platforms and, unless
// a future time was given, executes the deliveries immediately. Re-invoking on
// a scheduled item retries platforms that have not published yet; platforms
// already published are left untouched.
func (s *PublishingService) Publish(ctx context.Context, actor Actor, queueID string, input PublishInput) ([]models.PublishingRecord, error) {
	if !actor.Can(CapabilityPublishTrigger) {
		return nil, ErrForbidden
	}
	if len(input.Platforms) == 0 {
		return nil, Validationf("at least one platform is required")
	}

	item, err := s.queue.getScoped(ctx, actor.OrgID, queueID)
	if err != nil {
		return nil, err
	}
	switch item.Status {
	case models.StatusApproved:
		if _, err := s.queue.Transition(ctx, queueID, models.StatusScheduled); err != nil {
			return nil, err
		}
	case models.StatusScheduled:
		// Re-trigger after partial or full failure.
	default:
		return nil, &InvalidTransitionError{From: item.Status, To: models.StatusScheduled}
	}

	for _, platform := range input.Platforms {
		if _, ok := s.publishers[platform]; !ok {
			return nil, Validationf("unknown platform %q", platform)
		}
		enabled, err := s.ensurePlatform(ctx, platform)
		if err != nil {
			return nil, err
		}
		if !enabled {
			return nil, Validationf("platform %q is disabled", platform)
		}
		if err := s.ensureRecord(ctx, item, platform, input.ScheduledAt); err != nil {
			return nil, err
		}
	}

	if input.ScheduledAt == nil || !input.ScheduledAt.After(time.Now().UTC()) {
		if err := s.executePending(ctx, item); err != nil {
			return nil, err
		}
	}

	return s.Records(ctx, actor, queueID)
}

// Records returns all publishing records of one item, oldest first.
func (s *PublishingService) Records(ctx context.Context, actor Actor, queueID string) ([]models.PublishingRecord, error) {
	if _, err := s.queue.getScoped(ctx, actor.OrgID, queueID); err != nil {
		return nil, err
	}

	var records []models.PublishingRecord
	if err := s.db.WithContext(ctx).
		Where("queue_id = ?", queueID).
		Order("created_at asc").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list publishing records: %w", err)
	}
	return records, nil
}

// ensurePlatform registers the platform row on first use and reports whether
// it is still enabled.
func (s *PublishingService) ensurePlatform(ctx context.Context, name string) (bool, error) {
	var platform models.Platform
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&platform).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		platform = models.Platform{
			Name:        name,
			DisplayName: name,
			Enabled:     true,
		}
		if err := s.db.WithContext(ctx).Create(&platform).Error; err != nil {
			return false, fmt.Errorf("failed to register platform: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return platform.Enabled, nil
}

// ensureRecord creates the per-platform record unless one already published.
// A failed or scheduled record is reset to scheduled for the new attempt.
func (s *PublishingService) ensureRecord(ctx context.Context, item *models.QueueItem, platform string, scheduledAt *time.Time) error {
	var record models.PublishingRecord
	err := s.db.WithContext(ctx).
		Where("queue_id = ? AND platform = ?", item.ID, platform).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = models.PublishingRecord{
			ID:          uuid.NewString(),
			QueueID:     item.ID,
			OrgID:       item.OrgID,
			Platform:    platform,
			Status:      models.PublishingScheduled,
			ScheduledAt: scheduledAt,
		}
		return s.db.WithContext(ctx).Create(&record).Error
	}
	if err != nil {
		return err
	}

	switch record.Status {
	case models.PublishingPublished, models.PublishingInProgress:
		return nil
	default:
		return s.db.WithContext(ctx).Model(&record).Updates(map[string]interface{}{
			"status":       models.PublishingScheduled,
			"error":        "",
			"scheduled_at": scheduledAt,
		}).Error
	}
}

// executePending runs every scheduled record concurrently and re-aggregates
// the item status from the final record set.
func (s *PublishingService) executePending(ctx context.Context, item *models.QueueItem) error {
	var pending []models.PublishingRecord
	if err := s.db.WithContext(ctx).
		Where("queue_id = ? AND status = ?", item.ID, models.PublishingScheduled).
		Find(&pending).Error; err != nil {
		return fmt.Errorf("failed to load pending records: %w", err)
	}
	if len(pending) == 0 {
		return s.reaggregate(ctx, item.ID)
	}

	if _, err := s.queue.Transition(ctx, item.ID, models.StatusPublishing); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, record := range pending {
		record := record
		g.Go(func() error {
			s.executeRecord(gctx, item, record)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return s.reaggregate(ctx, item.ID)
}

// executeRecord runs one platform delivery end to end. Failures land on the
// record and the error log; they never propagate as an error because sibling
// platforms proceed independently.
func (s *PublishingService) executeRecord(ctx context.Context, item *models.QueueItem, record models.PublishingRecord) {
	res := s.db.WithContext(ctx).Model(&models.PublishingRecord{}).
		Where("id = ? AND status = ?", record.ID, models.PublishingScheduled).
		Update("status", models.PublishingInProgress)
	if res.Error != nil || res.RowsAffected == 0 {
		// A concurrent trigger claimed this record first.
		return
	}

	publisher := s.publishers[record.Platform]
	start := time.Now()
	outcome, err := publisher.Publish(ctx, item)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		s.logger.Error("Publishing failed",
			zap.String("queue_id", item.ID),
			zap.String("platform", record.Platform),
			zap.Error(err))
		if updateErr := s.db.WithContext(ctx).Model(&models.PublishingRecord{}).
			Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"status": models.PublishingFailed,
				"error":  err.Error(),
			}).Error; updateErr != nil {
			s.logger.Error("Failed to record publishing failure",
				zap.String("record_id", record.ID),
				zap.Error(updateErr))
		}
		if logErr := s.monitoring.RecordError("ERROR", "publisher", "Publishing failed", err.Error(),
			WithPlatform(record.Platform), WithQueueItem(item.ID)); logErr != nil {
			s.logger.Error("Failed to record error log", zap.Error(logErr))
		}
		s.monitoring.RecordMetric("publish_duration_seconds", "timer", elapsed,
			map[string]interface{}{"platform": record.Platform, "outcome": "failed"})
		return
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       models.PublishingPublished,
		"published_at": now,
		"error":        "",
	}
	if outcome != nil {
		updates["external_id"] = outcome.ExternalID
		updates["url"] = outcome.URL
	}
	if updateErr := s.db.WithContext(ctx).Model(&models.PublishingRecord{}).
		Where("id = ?", record.ID).
		Updates(updates).Error; updateErr != nil {
		s.logger.Error("Failed to record publishing success",
			zap.String("record_id", record.ID),
			zap.Error(updateErr))
		return
	}

	s.monitoring.RecordMetric("publish_duration_seconds", "timer", elapsed,
		map[string]interface{}{"platform": record.Platform, "outcome": "published"})
	s.logger.Info("Published to platform",
		zap.String("queue_id", item.ID),
		zap.String("platform", record.Platform))
}

// reaggregate recomputes the item status from the full record set and commits
// it when it differs and the move is legal.
func (s *PublishingService) reaggregate(ctx context.Context, queueID string) error {
	var records []models.PublishingRecord
	if err := s.db.WithContext(ctx).
		Where("queue_id = ?", queueID).
		Find(&records).Error; err != nil {
		return fmt.Errorf("failed to load records for aggregation: %w", err)
	}

	item, err := s.queue.load(ctx, queueID)
	if err != nil {
		return err
	}

	aggregate := models.AggregatePublishingStatus(records)
	if aggregate == item.Status || !models.CanTransition(item.Status, aggregate) {
		return nil
	}
	_, err = s.queue.Transition(ctx, queueID, aggregate)
	return err
}

// WebhookPublisher delivers content as a JSON POST to a configured endpoint.
// It is the default platform implementation; dedicated API integrations plug
// in through the same PlatformPublisher interface.
type WebhookPublisher struct {
	name   string
	cfg    config.PlatformConfig
	client *http.Client
	logger *zap.Logger
}

func NewWebhookPublisher(name string, cfg config.PlatformConfig, logger *zap.Logger) *WebhookPublisher {
	return &WebhookPublisher{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (p *WebhookPublisher) Name() string {
	return p.name
}

type webhookPayload struct {
	QueueID  string   `json:"queue_id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Slug     string   `json:"slug,omitempty"`
	Excerpt  string   `json:"excerpt,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

type webhookResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (p *WebhookPublisher) Publish(ctx context.Context, item *models.QueueItem) (*PublishOutcome, error) {
	payload := webhookPayload{
		QueueID: item.ID,
		Title:   item.GeneratedTitle,
		Content: item.GeneratedContent,
	}
	if meta := item.GenerationMetadata; meta != nil {
		if meta.PublishingPrep != nil {
			payload.Slug = meta.PublishingPrep.Slug
			payload.Excerpt = meta.PublishingPrep.Excerpt
			payload.Tags = meta.PublishingPrep.Tags
		}
		if meta.Image != nil {
			payload.ImageURL = meta.Image.URL
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach platform endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("platform endpoint returned status %d", resp.StatusCode)
	}

	var parsed webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// Some endpoints return an empty body on success.
		return &PublishOutcome{}, nil
	}
	return &PublishOutcome{ExternalID: parsed.ID, URL: parsed.URL}, nil
}
