package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/draftline/draftline/internal/models"
	"github.com/draftline/draftline/internal/service/generator"
	"github.com/draftline/draftline/pkg/util"
)

// Stage labels reported to the progress stream. StageReadyForReview is the
// final event of a successful run; the SSE endpoint closes the stream on it.
const (
	stageContent        = "Content generation"
	stageImages         = "Image generation"
	stageEnhancement    = "Content enhancement"
	stageInterlinking   = "Interlinking"
	stagePublishingPrep = "Publishing preparation"

	StageReadyForReview = "Ready for review"
)

// Orchestrator drives a queue item through the ordered generation phases.
// Phase execution is sequential per job; each phase persists its result so a
// re-invocation after a restart returns the cached artifact instead of
// redoing external work. Only the content phase is critical; image and
// enhancement failures degrade to empty results.
type Orchestrator struct {
	db         *gorm.DB
	logger     *zap.Logger
	queue      *QueueService
	progress   *ProgressHub
	monitoring *MonitoringService
	content    generator.ContentGenerator
	images     generator.ImageGenerator
	assets     generator.AssetStore

	// imageTimeout bounds the image-generation call; expiry degrades the
	// phase instead of failing the job.
	imageTimeout time.Duration
}

func NewOrchestrator(
	db *gorm.DB,
	logger *zap.Logger,
	queue *QueueService,
	progress *ProgressHub,
	monitoring *MonitoringService,
	content generator.ContentGenerator,
	images generator.ImageGenerator,
	assets generator.AssetStore,
	imageTimeout time.Duration,
) *Orchestrator {
	if imageTimeout <= 0 {
		imageTimeout = 30 * time.Second
	}
	return &Orchestrator{
		db:           db,
		logger:       logger,
		queue:        queue,
		progress:     progress,
		monitoring:   monitoring,
		content:      content,
		images:       images,
		assets:       assets,
		imageTimeout: imageTimeout,
	}
}

// Run executes every remaining phase for a queue item. Completed phases are
// skipped, so Run doubles as resume from any phase boundary. Cancellation is
// cooperative: an in-flight external call cannot be aborted, but its result
// is discarded once the recorded status says cancelled.
func (o *Orchestrator) Run(ctx context.Context, queueID string) error {
	for _, phase := range models.PhaseOrder {
		item, err := o.queue.load(ctx, queueID)
		if err != nil {
			return err
		}
		if item.Status == models.StatusCancelled {
			o.logger.Info("Stopping workflow for cancelled item", zap.String("queue_id", queueID))
			return nil
		}
		if item.Status == models.StatusFailed {
			return nil
		}

		if done, err := o.phaseCompleted(ctx, queueID, phase); err != nil {
			return err
		} else if done {
			continue
		}

		switch phase {
		case models.PhaseContent:
			err = o.runContentPhase(ctx, item)
		case models.PhaseImages:
			err = o.runImagePhase(ctx, item)
		case models.PhaseEnhancement:
			err = o.runEnhancementPhase(ctx, item)
		case models.PhaseInterlinking:
			err = o.runInterlinkingPhase(ctx, item)
		case models.PhasePublishingPrep:
			err = o.runPublishingPrepPhase(ctx, item)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runContentPhase(ctx context.Context, item *models.QueueItem) error {
	switch item.Status {
	case models.StatusQueued, models.StatusRejected:
		// Claim the item. The conditional update makes the claim exclusive:
		// losing the race surfaces as an error here, never as a second
		// generation attempt.
		if _, err := o.queue.Transition(ctx, item.ID, models.StatusGenerating); err != nil {
			return err
		}
	case models.StatusGenerating:
		// Already claimed with no completed content phase: a previous attempt
		// crashed mid-phase. The worker only selects queued items, so nothing
		// else can be running this job; proceed without a transition.
		o.logger.Info("Resuming interrupted generation attempt", zap.String("queue_id", item.ID))
	default:
		return &InvalidTransitionError{From: item.Status, To: models.StatusGenerating}
	}

	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              stageContent,
		StageNumber:        1,
		ProgressPercentage: 10,
		Details:            "Requesting article from content provider",
	})

	result, err := o.content.Generate(ctx, generator.GenerationRequest{
		Topic:              item.Topic,
		Keywords:           item.Keywords,
		TargetAudience:     item.TargetAudience,
		Tone:               item.Tone,
		WordCount:          item.WordCount,
		QualityLevel:       item.QualityLevel,
		TemplateType:       item.TemplateType,
		CustomInstructions: item.CustomInstructions,
	})
	if err != nil {
		message := fmt.Sprintf("content generation failed: %v", err)
		if _, failErr := o.queue.Fail(ctx, item.ID, message); failErr != nil {
			o.logger.Error("Failed to mark item failed",
				zap.String("queue_id", item.ID),
				zap.Error(failErr))
		}
		o.recordError(models.PhaseContent, "Content generation failed", err, item.ID)

		if errors.Is(err, generator.ErrUnavailable) {
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return err
	}

	if err := o.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"generated_title":   result.Title,
			"generated_content": result.Content,
		}).Error; err != nil {
		return fmt.Errorf("failed to store generated content: %w", err)
	}

	contentResult := &models.ContentResult{
		Title:     result.Title,
		Excerpt:   result.Excerpt,
		WordCount: len(strings.Fields(result.Content)),
		Provider:  result.Metadata["provider"],
	}
	if err := o.updateMetadata(ctx, item.ID, func(meta *models.GenerationMetadata) {
		meta.Content = contentResult
	}); err != nil {
		return err
	}
	if err := o.savePhase(ctx, item.ID, models.PhaseContent, contentResult, false, ""); err != nil {
		return err
	}

	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              stageContent,
		StageNumber:        1,
		ProgressPercentage: 35,
		Details:            "Article content received",
	})

	if _, err := o.queue.Transition(ctx, item.ID, models.StatusGenerated); err != nil {
		return err
	}

	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              stageContent,
		StageNumber:        1,
		ProgressPercentage: 40,
		Details:            "Content phase complete",
	})
	return nil
}

func (o *Orchestrator) runImagePhase(ctx context.Context, item *models.QueueItem) error {
	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              stageImages,
		StageNumber:        2,
		ProgressPercentage: 50,
		Details:            "Rendering header image",
	})

	imageCtx, cancel := context.WithTimeout(ctx, o.imageTimeout)
	defer cancel()

	prompt := item.GeneratedTitle
	if prompt == "" {
		prompt = item.Topic
	}

	result, err := o.images.Generate(imageCtx, generator.ImageRequest{Prompt: prompt})
	if err != nil {
		// Timeout and provider errors degrade: the job proceeds with no
		// image and the caller sees image_generated=false, not an error.
		o.logger.Warn("Image generation degraded",
			zap.String("queue_id", item.ID),
			zap.Error(err))
		o.recordError(models.PhaseImages, "Image generation degraded", err, item.ID)

		if metaErr := o.updateMetadata(ctx, item.ID, func(meta *models.GenerationMetadata) {
			meta.Image = nil
			meta.ImageGenerated = false
		}); metaErr != nil {
			return metaErr
		}
		if saveErr := o.savePhase(ctx, item.ID, models.PhaseImages, nil, true, err.Error()); saveErr != nil {
			return saveErr
		}
		o.report(ctx, item.ID, models.ProgressUpdate{
			Stage:              stageImages,
			StageNumber:        2,
			ProgressPercentage: 55,
			Details:            "Image generation skipped",
		})
		return nil
	}

	imageURL := result.ImageURL
	if o.assets != nil {
		hosted, storeErr := o.assets.Store(ctx, generator.AssetUpload{
			Name:      util.Slugify(prompt) + "-header",
			SourceURL: result.ImageURL,
			Data:      result.ImageData,
		})
		if storeErr != nil {
			// Non-fatal: serve from the provider URL instead.
			o.logger.Warn("Asset upload failed",
				zap.String("queue_id", item.ID),
				zap.Error(storeErr))
		} else {
			imageURL = hosted
		}
	}

	imageResult := &models.ImageResult{
		URL:          imageURL,
		Width:        result.Width,
		Height:       result.Height,
		QualityScore: result.QualityScore,
	}
	if err := o.updateMetadata(ctx, item.ID, func(meta *models.GenerationMetadata) {
		meta.Image = imageResult
		meta.ImageGenerated = true
	}); err != nil {
		return err
	}
	if err := o.savePhase(ctx, item.ID, models.PhaseImages, imageResult, false, ""); err != nil {
		return err
	}

	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              stageImages,
		StageNumber:        2,
		ProgressPercentage: 55,
		Details:            "Header image ready",
	})
	return nil
}

func (o *Orchestrator) runEnhancementPhase(ctx context.Context, item *models.QueueItem) error {
	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              stageEnhancement,
		StageNumber:        3,
		ProgressPercentage: 65,
		Details:            "Polishing article formatting",
	})

	enhanced, err := o.content.Enhance(ctx, generator.EnhanceRequest{
		Title:   item.GeneratedTitle,
		Content: item.GeneratedContent,
	})
	degraded := err != nil || enhanced == ""
	enhancementResult := &models.EnhancementResult{Applied: !degraded}

	if degraded {
		if err != nil {
			o.logger.Warn("Enhancement degraded",
				zap.String("queue_id", item.ID),
				zap.Error(err))
			o.recordError(models.PhaseEnhancement, "Content enhancement degraded", err, item.ID)
			enhancementResult.Details = err.Error()
		}
	} else {
		if updateErr := o.db.WithContext(ctx).Model(&models.QueueItem{}).
			Where("id = ?", item.ID).
			Update("generated_content", enhanced).Error; updateErr != nil {
			return fmt.Errorf("failed to store enhanced content: %w", updateErr)
		}
	}

	if err := o.updateMetadata(ctx, item.ID, func(meta *models.GenerationMetadata) {
		meta.Enhancement = enhancementResult
	}); err != nil {
		return err
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if err := o.savePhase(ctx, item.ID, models.PhaseEnhancement, enhancementResult, degraded, errMsg); err != nil {
		return err
	}

	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              stageEnhancement,
		StageNumber:        3,
		ProgressPercentage: 70,
		Details:            "Enhancement phase complete",
	})
	return nil
}

func (o *Orchestrator) runInterlinkingPhase(ctx context.Context, item *models.QueueItem) error {
	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              stageInterlinking,
		StageNumber:        4,
		ProgressPercentage: 75,
		Details:            "Collecting related drafts",
	})

	var drafts []models.PostDraft
	if err := o.db.WithContext(ctx).
		Where("org_id = ? AND queue_id <> ?", item.OrgID, item.ID).
		Order("created_at desc").
		Limit(5).
		Find(&drafts).Error; err != nil {
		// Suggestions only; never worth failing the job over.
		o.logger.Warn("Interlinking lookup failed",
			zap.String("queue_id", item.ID),
			zap.Error(err))
		drafts = nil
	}

	links := make([]models.InternalLink, 0, len(drafts))
	for _, draft := range drafts {
		links = append(links, models.InternalLink{PostID: draft.ID, Title: draft.Title})
	}
	interlinkingResult := &models.InterlinkingResult{Links: links}

	if err := o.updateMetadata(ctx, item.ID, func(meta *models.GenerationMetadata) {
		meta.Interlinking = interlinkingResult
	}); err != nil {
		return err
	}
	if err := o.savePhase(ctx, item.ID, models.PhaseInterlinking, interlinkingResult, false, ""); err != nil {
		return err
	}

	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              stageInterlinking,
		StageNumber:        4,
		ProgressPercentage: 80,
		Details:            fmt.Sprintf("Suggested %d internal links", len(links)),
	})
	return nil
}

func (o *Orchestrator) runPublishingPrepPhase(ctx context.Context, item *models.QueueItem) error {
	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              stagePublishingPrep,
		StageNumber:        5,
		ProgressPercentage: 90,
		Details:            "Preparing publication metadata",
	})

	item, err := o.queue.load(ctx, item.ID)
	if err != nil {
		return err
	}

	excerpt := ""
	if item.GenerationMetadata != nil && item.GenerationMetadata.Content != nil {
		excerpt = item.GenerationMetadata.Content.Excerpt
	}
	if excerpt == "" {
		excerpt = util.Truncate(item.GeneratedContent, 200)
	}

	// Keywords arrive free-form and may pack several tags into one entry.
	tags := make([]string, 0, len(item.Keywords))
	for _, keyword := range item.Keywords {
		tags = append(tags, util.ParseTags(keyword)...)
	}

	prepResult := &models.PublishingPrepResult{
		Slug:    util.Slugify(item.GeneratedTitle),
		Excerpt: excerpt,
		Tags:    tags,
		ReadyAt: time.Now().UTC(),
	}

	if err := o.updateMetadata(ctx, item.ID, func(meta *models.GenerationMetadata) {
		meta.PublishingPrep = prepResult
	}); err != nil {
		return err
	}
	if err := o.savePhase(ctx, item.ID, models.PhasePublishingPrep, prepResult, false, ""); err != nil {
		return err
	}

	o.report(ctx, item.ID, models.ProgressUpdate{
		Stage:              StageReadyForReview,
		StageNumber:        6,
		ProgressPercentage: 100,
		Details:            "Generation pipeline complete",
	})
	return nil
}

// phaseCompleted reports whether a phase already persisted a result.
func (o *Orchestrator) phaseCompleted(ctx context.Context, queueID string, phase models.Phase) (bool, error) {
	var row models.WorkflowPhase
	err := o.db.WithContext(ctx).
		Where("queue_id = ? AND phase = ? AND completed = ?", queueID, phase, true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Phases returns the persisted phase rows for a queue item in execution
// order, stored artifacts included.
func (o *Orchestrator) Phases(ctx context.Context, queueID string) ([]models.WorkflowPhase, error) {
	var rows []models.WorkflowPhase
	if err := o.db.WithContext(ctx).
		Where("queue_id = ?", queueID).
		Order("created_at asc, id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (o *Orchestrator) savePhase(ctx context.Context, queueID string, phase models.Phase, result any, degraded bool, errMsg string) error {
	var payload datatypes.JSON
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal phase result: %w", err)
		}
		payload = datatypes.JSON(data)
	}

	now := time.Now().UTC()
	var row models.WorkflowPhase
	err := o.db.WithContext(ctx).Where("queue_id = ? AND phase = ?", queueID, phase).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.WorkflowPhase{
			QueueID:     queueID,
			Phase:       phase,
			Completed:   true,
			Degraded:    degraded,
			Resumable:   true,
			Result:      payload,
			Error:       errMsg,
			CompletedAt: &now,
		}
		return o.db.WithContext(ctx).Create(&row).Error
	}
	if err != nil {
		return err
	}

	return o.db.WithContext(ctx).Model(&row).Updates(map[string]interface{}{
		"completed":    true,
		"degraded":     degraded,
		"result":       payload,
		"error":        errMsg,
		"completed_at": now,
	}).Error
}

// updateMetadata applies a mutation to the item's metadata payload. Phases
// run sequentially per job, so the read-modify-write is single-writer.
func (o *Orchestrator) updateMetadata(ctx context.Context, queueID string, mutate func(*models.GenerationMetadata)) error {
	item, err := o.queue.load(ctx, queueID)
	if err != nil {
		return err
	}

	meta := item.Metadata()
	mutate(meta)

	if err := o.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ?", queueID).
		Select("GenerationMetadata").
		Updates(&models.QueueItem{GenerationMetadata: meta}).Error; err != nil {
		return fmt.Errorf("failed to update generation metadata: %w", err)
	}
	return nil
}

func (o *Orchestrator) report(ctx context.Context, queueID string, event models.ProgressUpdate) {
	if err := o.progress.Append(ctx, queueID, event); err != nil {
		o.logger.Error("Failed to append progress event",
			zap.String("queue_id", queueID),
			zap.String("stage", event.Stage),
			zap.Error(err))
	}
}

// recordError writes a monitoring entry for a phase failure. Severity follows
// the phase: a critical phase fails the job and logs at ERROR, everything else
// degrades and logs at WARN.
func (o *Orchestrator) recordError(phase models.Phase, title string, err error, queueID string) {
	level := "WARN"
	if phase.IsCritical() {
		level = "ERROR"
	}
	if logErr := o.monitoring.RecordError(level, "orchestrator", title, err.Error(), WithQueueItem(queueID)); logErr != nil {
		o.logger.Error("Failed to record error log", zap.Error(logErr))
	}
}
