package models

import "strings"

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusGenerated  Status = "generated"
	StatusInReview   Status = "in_review"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusScheduled  Status = "scheduled"
	StatusPublishing Status = "publishing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusGenerating,
	StatusGenerated,
	StatusInReview,
	StatusApproved,
	StatusRejected,
	StatusScheduled,
	StatusPublishing,
	StatusPublished,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transitions is the full legal transition table. Terminal states have no
// entry. in_review -> generated covers the changes_requested review outcome;
// failed's single outgoing edge is the retry path; publishing -> scheduled is
// the re-aggregation result when every platform attempt fails and the item
// waits for a re-trigger.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusGenerating, StatusFailed, StatusCancelled},
	StatusGenerating: {StatusGenerated, StatusFailed, StatusCancelled},
	StatusGenerated:  {StatusInReview, StatusFailed, StatusCancelled},
	StatusInReview:   {StatusApproved, StatusRejected, StatusGenerated, StatusFailed, StatusCancelled},
	StatusApproved:   {StatusScheduled, StatusFailed, StatusCancelled},
	StatusRejected:   {StatusGenerating, StatusFailed, StatusCancelled},
	StatusScheduled:  {StatusPublishing, StatusFailed, StatusCancelled},
	StatusPublishing: {StatusPublished, StatusScheduled, StatusFailed, StatusCancelled},
	StatusFailed:     {StatusQueued},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status accepts no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusCancelled
}

// CanTransition reports whether moving from one status to another is legal.
// It is pure and total over the status set. Re-entering the current
// non-terminal status is allowed and treated as a no-op by callers, with one
// exception: generating is single-attempt, so re-entering it is rejected — a
// writer that lost the queued -> generating race must see an error, not a
// silent success it would mistake for its own claim. Terminal states accept
// nothing, including themselves.
func CanTransition(from, to Status) bool {
	if _, ok := statusSet[from]; !ok {
		return false
	}
	if _, ok := statusSet[to]; !ok {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return from != StatusGenerating
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
