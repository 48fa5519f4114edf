package server

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/draftline/draftline/internal/service"
)

// handleStreamProgress tails a queue item's stage events over SSE. The stored
// timeline is replayed first, then live events follow until the client
// disconnects. A reconnecting client simply gets the replay again.
func (s *Server) handleStreamProgress(c *gin.Context) {
	actor := service.ActorFromContext(c)
	if _, err := s.QueueService.Get(c.Request.Context(), actor, c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	sub, err := s.ProgressHub.Subscribe(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return false
			}
			c.SSEvent("progress", event)
			// The final pipeline event closes the stream instead of
			// letting the client idle forever.
			if event.ProgressPercentage >= 100 && event.Stage == service.StageReadyForReview {
				return false
			}
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
