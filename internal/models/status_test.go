package models_test

import (
	"testing"

	"github.com/draftline/draftline/internal/models"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input string
		want  models.Status
		ok    bool
	}{
		{"queued", models.StatusQueued, true},
		{"  Generating ", models.StatusGenerating, true},
		{"IN_REVIEW", models.StatusInReview, true},
		{"published", models.StatusPublished, true},
		{"", "", false},
		{"unknown", "", false},
		{"que ued", "", false},
	}

	for _, tt := range tests {
		got, ok := models.ParseStatus(tt.input)
		if ok != tt.ok {
			t.Fatalf("ParseStatus(%q) ok = %v, want %v", tt.input, ok, tt.ok)
		}
		if ok && got != tt.want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range models.AllStatuses() {
		want := status == models.StatusPublished || status == models.StatusCancelled
		if got := status.IsTerminal(); got != want {
			t.Fatalf("IsTerminal(%q) = %v, want %v", status, got, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from models.Status
		to   models.Status
		want bool
	}{
		{"queued to generating", models.StatusQueued, models.StatusGenerating, true},
		{"generating to generated", models.StatusGenerating, models.StatusGenerated, true},
		{"generated to in_review", models.StatusGenerated, models.StatusInReview, true},
		{"in_review to approved", models.StatusInReview, models.StatusApproved, true},
		{"in_review to rejected", models.StatusInReview, models.StatusRejected, true},
		{"changes requested returns to generated", models.StatusInReview, models.StatusGenerated, true},
		{"approved to scheduled", models.StatusApproved, models.StatusScheduled, true},
		{"rejected back to generating", models.StatusRejected, models.StatusGenerating, true},
		{"scheduled to publishing", models.StatusScheduled, models.StatusPublishing, true},
		{"publishing to published", models.StatusPublishing, models.StatusPublished, true},
		{"publishing back to scheduled", models.StatusPublishing, models.StatusScheduled, true},
		{"failed retry path", models.StatusFailed, models.StatusQueued, true},

		{"generating rejects re-entry", models.StatusGenerating, models.StatusGenerating, false},
		{"generated allows re-entry", models.StatusGenerated, models.StatusGenerated, true},

		{"queued skips generating", models.StatusQueued, models.StatusGenerated, false},
		{"generated skips review", models.StatusGenerated, models.StatusApproved, false},
		{"approved cannot jump to published", models.StatusApproved, models.StatusPublished, false},
		{"scheduled cannot jump to published", models.StatusScheduled, models.StatusPublished, false},
		{"failed cannot restart mid-flight", models.StatusFailed, models.StatusGenerating, false},

		{"published accepts nothing", models.StatusPublished, models.StatusQueued, false},
		{"published rejects itself", models.StatusPublished, models.StatusPublished, false},
		{"cancelled accepts nothing", models.StatusCancelled, models.StatusQueued, false},
		{"cancelled rejects itself", models.StatusCancelled, models.StatusCancelled, false},

		{"unknown from", models.Status("bogus"), models.StatusQueued, false},
		{"unknown to", models.StatusQueued, models.Status("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := models.CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCanTransitionSelfNoOp(t *testing.T) {
	for _, status := range models.AllStatuses() {
		// generating is single-attempt: re-entering it is never legal.
		want := !status.IsTerminal() && status != models.StatusGenerating
		if got := models.CanTransition(status, status); got != want {
			t.Fatalf("CanTransition(%q, %q) = %v, want %v", status, status, got, want)
		}
	}
}

func TestEveryStatusCanFailOrCancelUnlessTerminal(t *testing.T) {
	for _, status := range models.AllStatuses() {
		if status.IsTerminal() || status == models.StatusFailed {
			continue
		}
		if !models.CanTransition(status, models.StatusCancelled) {
			t.Fatalf("expected %q to allow cancellation", status)
		}
		if !models.CanTransition(status, models.StatusFailed) {
			t.Fatalf("expected %q to allow failure", status)
		}
	}
}
