package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/draftline/draftline/internal/models"
	"github.com/draftline/draftline/internal/service/generator"
)

type fakeContent struct {
	generateErr   error
	enhanceErr    error
	generateCalls int
	enhanceCalls  int
}

func (f *fakeContent) Generate(ctx context.Context, req generator.GenerationRequest) (*generator.GenerationResult, error) {
	f.generateCalls++
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &generator.GenerationResult{
		Title:    "Brewing Better Coffee",
		Content:  "Grind fresh. Pour slow. Enjoy often.",
		Excerpt:  "Grind fresh.",
		Metadata: map[string]string{"provider": "fake"},
	}, nil
}

func (f *fakeContent) Enhance(ctx context.Context, req generator.EnhanceRequest) (string, error) {
	f.enhanceCalls++
	if f.enhanceErr != nil {
		return "", f.enhanceErr
	}
	return req.Content + " (polished)", nil
}

type fakeImages struct {
	err   error
	delay time.Duration
	calls int
}

func (f *fakeImages) Generate(ctx context.Context, req generator.ImageRequest) (*generator.ImageResult, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &generator.ImageResult{ImageURL: "https://provider/image.png", Width: 1200, Height: 630, QualityScore: 0.92}, nil
}

type fakeAssets struct {
	url string
	err error
}

func (f *fakeAssets) Store(ctx context.Context, upload generator.AssetUpload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type orchestratorFixture struct {
	db      *gorm.DB
	queue   *QueueService
	orch    *Orchestrator
	content *fakeContent
	images  *fakeImages
	item    *models.QueueItem
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	db := newTestDB(t)
	logger := zap.NewNop()
	queue := NewQueueService(db, logger)
	hub := NewProgressHub(db, logger)
	monitoring := NewMonitoringService(db, logger)
	content := &fakeContent{}
	images := &fakeImages{}
	assets := &fakeAssets{url: "https://assets/hosted.png"}

	orch := NewOrchestrator(db, logger, queue, hub, monitoring, content, images, assets, 50*time.Millisecond)

	item := seedItem(t, db, testEditor, models.StatusQueued)
	return &orchestratorFixture{db: db, queue: queue, orch: orch, content: content, images: images, item: item}
}

func (f *orchestratorFixture) reload(t *testing.T) *models.QueueItem {
	t.Helper()
	item, err := f.queue.load(context.Background(), f.item.ID)
	if err != nil {
		t.Fatalf("failed to reload item: %v", err)
	}
	return item
}

func TestRunCompletesAllPhases(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	if err := f.orch.Run(ctx, f.item.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := f.reload(t)
	if item.Status != models.StatusGenerated {
		t.Fatalf("status = %q, want generated", item.Status)
	}
	if item.GeneratedTitle != "Brewing Better Coffee" {
		t.Fatalf("generated_title = %q", item.GeneratedTitle)
	}
	if !strings.Contains(item.GeneratedContent, "(polished)") {
		t.Fatal("enhanced content not stored")
	}
	if item.GenerationStartedAt == nil || item.GenerationCompletedAt == nil {
		t.Fatal("generation timestamps not stamped")
	}
	if item.PostID == nil {
		t.Fatal("draft not materialized")
	}

	meta := item.GenerationMetadata
	if meta == nil {
		t.Fatal("generation metadata missing")
	}
	if meta.Content == nil || meta.Content.Title != "Brewing Better Coffee" {
		t.Fatalf("content artifact = %+v", meta.Content)
	}
	if !meta.ImageGenerated || meta.Image == nil {
		t.Fatal("image artifact missing")
	}
	if meta.Image.URL != "https://assets/hosted.png" {
		t.Fatalf("image url = %q, want hosted asset url", meta.Image.URL)
	}
	if meta.Enhancement == nil || !meta.Enhancement.Applied {
		t.Fatal("enhancement artifact missing or not applied")
	}
	if meta.Interlinking == nil {
		t.Fatal("interlinking artifact missing")
	}
	if meta.PublishingPrep == nil || meta.PublishingPrep.Slug == "" {
		t.Fatalf("publishing prep artifact = %+v", meta.PublishingPrep)
	}

	phases, err := f.orch.Phases(ctx, f.item.ID)
	if err != nil {
		t.Fatalf("failed to load phases: %v", err)
	}
	if len(phases) != len(models.PhaseOrder) {
		t.Fatalf("phase rows = %d, want %d", len(phases), len(models.PhaseOrder))
	}
	for i, phase := range phases {
		if phase.Phase != models.PhaseOrder[i] {
			t.Fatalf("phase[%d] = %q, want %q", i, phase.Phase, models.PhaseOrder[i])
		}
		if !phase.Completed {
			t.Fatalf("phase %q not completed", phase.Phase)
		}
		if phase.Degraded {
			t.Fatalf("phase %q unexpectedly degraded", phase.Phase)
		}
	}

	if item.ProgressPercentage != 100 {
		t.Fatalf("final progress = %d, want 100", item.ProgressPercentage)
	}
	if len(item.ProgressUpdates) == 0 {
		t.Fatal("no progress events recorded")
	}
	final := item.ProgressUpdates[len(item.ProgressUpdates)-1]
	if final.Stage != StageReadyForReview {
		t.Fatalf("final stage = %q, want %q", final.Stage, StageReadyForReview)
	}
}

func TestRunContentFailureIsCritical(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.content.generateErr = fmt.Errorf("%w: connection refused", generator.ErrUnavailable)
	ctx := context.Background()

	err := f.orch.Run(ctx, f.item.ID)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("Run err = %v, want ErrUpstreamUnavailable", err)
	}

	item := f.reload(t)
	if item.Status != models.StatusFailed {
		t.Fatalf("status = %q, want failed", item.Status)
	}
	if !strings.Contains(item.GenerationError, "content generation failed") {
		t.Fatalf("generation_error = %q, want readable message", item.GenerationError)
	}
	if f.images.calls != 0 {
		t.Fatal("image phase ran after critical content failure")
	}

	var logs int64
	if err := f.db.Model(&models.ErrorLog{}).Where("queue_id = ?", f.item.ID).Count(&logs).Error; err != nil {
		t.Fatalf("failed to count error logs: %v", err)
	}
	if logs == 0 {
		t.Fatal("critical failure not recorded in error log")
	}
}

func TestRunImageFailureDegrades(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.images.err = errors.New("render farm down")
	ctx := context.Background()

	if err := f.orch.Run(ctx, f.item.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := f.reload(t)
	if item.Status != models.StatusGenerated {
		t.Fatalf("status = %q, want generated despite image failure", item.Status)
	}
	meta := item.GenerationMetadata
	if meta == nil || meta.ImageGenerated {
		t.Fatal("image_generated should be false after degraded phase")
	}
	if meta.Image != nil {
		t.Fatalf("image artifact = %+v, want nil", meta.Image)
	}

	var phase models.WorkflowPhase
	if err := f.db.Where("queue_id = ? AND phase = ?", f.item.ID, models.PhaseImages).First(&phase).Error; err != nil {
		t.Fatalf("image phase row missing: %v", err)
	}
	if !phase.Completed || !phase.Degraded {
		t.Fatalf("image phase completed=%v degraded=%v, want true/true", phase.Completed, phase.Degraded)
	}
}

func TestRunImageTimeoutDegrades(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.images.delay = time.Second // well past the fixture's 50ms timeout
	ctx := context.Background()

	if err := f.orch.Run(ctx, f.item.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := f.reload(t)
	if item.Status != models.StatusGenerated {
		t.Fatalf("status = %q, want generated despite image timeout", item.Status)
	}
	if item.GenerationMetadata == nil || item.GenerationMetadata.ImageGenerated {
		t.Fatal("image_generated should be false after timeout")
	}
}

func TestRunEnhancementFailureDegrades(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.content.enhanceErr = errors.New("enhancer overloaded")
	ctx := context.Background()

	if err := f.orch.Run(ctx, f.item.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := f.reload(t)
	if item.Status != models.StatusGenerated {
		t.Fatalf("status = %q, want generated", item.Status)
	}
	if strings.Contains(item.GeneratedContent, "(polished)") {
		t.Fatal("degraded enhancement must not alter content")
	}
	meta := item.GenerationMetadata
	if meta == nil || meta.Enhancement == nil || meta.Enhancement.Applied {
		t.Fatal("enhancement artifact should record applied=false")
	}
}

func TestRunResumesFromCompletedPhase(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	if err := f.orch.Run(ctx, f.item.ID); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if f.content.generateCalls != 1 {
		t.Fatalf("generate calls = %d, want 1", f.content.generateCalls)
	}

	// Re-running redoes no external work: every phase returns its cache
	if err := f.orch.Run(ctx, f.item.ID); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if f.content.generateCalls != 1 {
		t.Fatalf("generate called again on resume: %d calls", f.content.generateCalls)
	}
	if f.images.calls != 1 {
		t.Fatalf("image generation called again on resume: %d calls", f.images.calls)
	}
}

func TestRunResumesCrashedGeneratingAttempt(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	// An item left in generating with no completed content phase is a crashed
	// attempt; Run picks it up without a fresh claim.
	if _, err := f.queue.Transition(ctx, f.item.ID, models.StatusGenerating); err != nil {
		t.Fatalf("failed to stage crashed attempt: %v", err)
	}

	if err := f.orch.Run(ctx, f.item.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.content.generateCalls != 1 {
		t.Fatalf("generate calls = %d, want 1", f.content.generateCalls)
	}

	item := f.reload(t)
	if item.Status != models.StatusGenerated {
		t.Fatalf("status = %q, want generated", item.Status)
	}
}

func TestRunRejectsUnclaimableItem(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	if err := f.db.Model(&models.QueueItem{}).
		Where("id = ?", f.item.ID).
		Update("status", models.StatusInReview).Error; err != nil {
		t.Fatalf("failed to stage item: %v", err)
	}

	err := f.orch.Run(ctx, f.item.ID)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("Run err = %v, want InvalidTransitionError", err)
	}
	if f.content.generateCalls != 0 {
		t.Fatal("generation ran for an unclaimable item")
	}
}

func TestRunStopsForCancelledItem(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	if _, err := f.queue.Transition(ctx, f.item.ID, models.StatusCancelled); err != nil {
		t.Fatalf("failed to cancel item: %v", err)
	}

	if err := f.orch.Run(ctx, f.item.ID); err != nil {
		t.Fatalf("Run on cancelled item errored: %v", err)
	}
	if f.content.generateCalls != 0 {
		t.Fatal("generation ran for a cancelled item")
	}
}

func TestPublishingPrepNormalizesTags(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	// Dashboard input often packs several tags into one keyword entry.
	if err := f.db.Model(&models.QueueItem{}).
		Where("id = ?", f.item.ID).
		Update("keywords", models.StringArray{"coffee, brewing", "beans"}).Error; err != nil {
		t.Fatalf("failed to set keywords: %v", err)
	}

	if err := f.orch.Run(ctx, f.item.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := f.reload(t)
	meta := item.GenerationMetadata
	if meta == nil || meta.PublishingPrep == nil {
		t.Fatal("publishing prep artifact missing")
	}
	want := []string{"coffee", "brewing", "beans"}
	got := meta.PublishingPrep.Tags
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tags = %v, want %v", got, want)
		}
	}
}

func TestInterlinkingSuggestsOrgDrafts(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	if err := f.db.Create(&models.PostDraft{
		ID: "draft-other", OrgID: testEditor.OrgID, QueueID: "other-queue",
		Title: "Related article", Content: "Body",
	}).Error; err != nil {
		t.Fatalf("failed to seed sibling draft: %v", err)
	}
	if err := f.db.Create(&models.PostDraft{
		ID: "draft-foreign", OrgID: "org-2", QueueID: "foreign-queue",
		Title: "Foreign article", Content: "Body",
	}).Error; err != nil {
		t.Fatalf("failed to seed foreign draft: %v", err)
	}

	if err := f.orch.Run(ctx, f.item.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := f.reload(t)
	meta := item.GenerationMetadata
	if meta == nil || meta.Interlinking == nil {
		t.Fatal("interlinking artifact missing")
	}
	for _, link := range meta.Interlinking.Links {
		if link.PostID == "draft-foreign" {
			t.Fatal("interlinking crossed the org boundary")
		}
	}
	found := false
	for _, link := range meta.Interlinking.Links {
		if link.PostID == "draft-other" {
			found = true
		}
	}
	if !found {
		t.Fatal("sibling draft not suggested")
	}
}
