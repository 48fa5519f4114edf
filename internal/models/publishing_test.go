package models_test

import (
	"testing"

	"github.com/draftline/draftline/internal/models"
)

func records(statuses ...models.PublishingStatus) []models.PublishingRecord {
	out := make([]models.PublishingRecord, len(statuses))
	for i, status := range statuses {
		out[i] = models.PublishingRecord{Status: status}
	}
	return out
}

func TestAggregatePublishingStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []models.PublishingStatus
		want     models.Status
	}{
		{"no records", nil, models.StatusScheduled},
		{"all scheduled", []models.PublishingStatus{models.PublishingScheduled, models.PublishingScheduled}, models.StatusScheduled},
		{"all failed", []models.PublishingStatus{models.PublishingFailed, models.PublishingFailed}, models.StatusScheduled},
		{"one publishing", []models.PublishingStatus{models.PublishingScheduled, models.PublishingInProgress}, models.StatusPublishing},
		{"all published", []models.PublishingStatus{models.PublishingPublished, models.PublishingPublished}, models.StatusPublished},
		{"single published", []models.PublishingStatus{models.PublishingPublished}, models.StatusPublished},
		// Progress on one platform is not masked by a failure on another.
		{"published plus failed", []models.PublishingStatus{models.PublishingPublished, models.PublishingFailed}, models.StatusPublishing},
		{"published plus scheduled", []models.PublishingStatus{models.PublishingPublished, models.PublishingScheduled}, models.StatusPublishing},
		{"publishing plus failed", []models.PublishingStatus{models.PublishingInProgress, models.PublishingFailed}, models.StatusPublishing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := models.AggregatePublishingStatus(records(tt.statuses...)); got != tt.want {
				t.Fatalf("AggregatePublishingStatus(%v) = %q, want %q", tt.statuses, got, tt.want)
			}
		})
	}
}
