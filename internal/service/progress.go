package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/draftline/draftline/internal/models"
)

// subscriberBuffer bounds each subscriber's event channel. When a slow
// consumer falls behind, the oldest buffered event is dropped first; the
// stored timeline on the row stays complete either way.
const subscriberBuffer = 64

// ProgressHub is the append-only progress log plus the live fan-out. Writers
// only append; readers take a snapshot and then tail new events, so no
// read-modify-write discipline is needed on the subscriber side.
type ProgressHub struct {
	db     *gorm.DB
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[*ProgressSubscriber]struct{}
}

// ProgressSubscriber is one live listener on a queue item's stage events.
type ProgressSubscriber struct {
	QueueID string
	Events  chan models.ProgressUpdate

	hub  *ProgressHub
	once sync.Once
}

func NewProgressHub(db *gorm.DB, logger *zap.Logger) *ProgressHub {
	return &ProgressHub{
		db:     db,
		logger: logger,
		subs:   make(map[string]map[*ProgressSubscriber]struct{}),
	}
}

// Append records one stage event for a queue item and fans it out to live
// subscribers. Events are appended in insertion order and never rewritten,
// reordered or deduplicated; the item's current_stage and progress_percentage
// mirror the newest event.
func (h *ProgressHub) Append(ctx context.Context, queueID string, event models.ProgressUpdate) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.ProgressPercentage = clampPercent(event.ProgressPercentage)

	var item models.QueueItem
	if err := h.db.WithContext(ctx).First(&item, "id = ?", queueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	item.ProgressUpdates = append(item.ProgressUpdates, event)
	item.CurrentStage = event.Stage
	item.ProgressPercentage = event.ProgressPercentage

	if err := h.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ?", queueID).
		Select("ProgressUpdates", "CurrentStage", "ProgressPercentage").
		Updates(&item).Error; err != nil {
		return err
	}

	h.broadcast(queueID, event)
	return nil
}

// Snapshot returns the ordered, finite event sequence recorded so far.
func (h *ProgressHub) Snapshot(ctx context.Context, queueID string) (models.ProgressUpdates, error) {
	var item models.QueueItem
	if err := h.db.WithContext(ctx).Select("id", "progress_updates").First(&item, "id = ?", queueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.ProgressUpdates, nil
}

// Subscribe attaches a live listener. The stored snapshot is replayed into
// the subscriber's buffer first so clients reconnecting after a gap see the
// full timeline before the tail.
func (h *ProgressHub) Subscribe(ctx context.Context, queueID string) (*ProgressSubscriber, error) {
	snapshot, err := h.Snapshot(ctx, queueID)
	if err != nil {
		return nil, err
	}

	sub := &ProgressSubscriber{
		QueueID: queueID,
		Events:  make(chan models.ProgressUpdate, subscriberBuffer),
		hub:     h,
	}

	for _, event := range snapshot {
		offerDropOldest(sub.Events, event)
	}

	h.mu.Lock()
	listeners, ok := h.subs[queueID]
	if !ok {
		listeners = make(map[*ProgressSubscriber]struct{})
		h.subs[queueID] = listeners
	}
	listeners[sub] = struct{}{}
	h.mu.Unlock()

	return sub, nil
}

// Close detaches the subscriber and releases its channel.
func (s *ProgressSubscriber) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if listeners, ok := s.hub.subs[s.QueueID]; ok {
			delete(listeners, s)
			if len(listeners) == 0 {
				delete(s.hub.subs, s.QueueID)
			}
		}
		s.hub.mu.Unlock()
		close(s.Events)
	})
}

func (h *ProgressHub) broadcast(queueID string, event models.ProgressUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[queueID] {
		if !offerDropOldest(sub.Events, event) {
			h.logger.Warn("Dropped progress event for slow subscriber",
				zap.String("queue_id", queueID),
				zap.String("stage", event.Stage))
		}
	}
}

// offerDropOldest delivers an event to a bounded channel, evicting the oldest
// buffered event when full. Returns false if eviction was needed.
func offerDropOldest(ch chan models.ProgressUpdate, event models.ProgressUpdate) bool {
	select {
	case ch <- event:
		return true
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- event:
	default:
	}
	return false
}

func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
