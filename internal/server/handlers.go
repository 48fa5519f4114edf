package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/draftline/draftline/internal/models"
	"github.com/draftline/draftline/internal/service"
)

// respondError maps service errors onto HTTP status codes. State-machine
// rejections are conflicts, not client formatting mistakes, so they land on
// 409 with the rejected pair in the message.
func (s *Server) respondError(c *gin.Context, err error) {
	var invalidTransition *service.InvalidTransitionError
	var retryState *service.RetryStateError
	var validation *service.ValidationError

	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrConflictingApproval):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &invalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": invalidTransition.Error()})
	case errors.As(err, &retryState):
		c.JSON(http.StatusConflict, gin.H{"error": retryState.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.Is(err, service.ErrUpstreamUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upstream service unavailable"})
	default:
		s.Logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (s *Server) handleCreateQueueItem(c *gin.Context) {
	var input service.CreateQueueItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	item, err := s.QueueService.Create(c.Request.Context(), service.ActorFromContext(c), input)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (s *Server) handleListQueueItems(c *gin.Context) {
	filter := service.ListFilter{}

	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + strconv.Quote(raw)})
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("priority"); raw != "" {
		priority, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be an integer"})
			return
		}
		filter.Priority = &priority
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	items, total, err := s.QueueService.List(c.Request.Context(), service.ActorFromContext(c), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": total,
	})
}

func (s *Server) handleGetQueueItem(c *gin.Context) {
	item, err := s.QueueService.Get(c.Request.Context(), service.ActorFromContext(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) handleUpdateQueueItem(c *gin.Context) {
	var input service.UpdateQueueItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	item, err := s.QueueService.Update(c.Request.Context(), service.ActorFromContext(c), c.Param("id"), input)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) handleDeleteQueueItem(c *gin.Context) {
	outcome, err := s.QueueService.Delete(c.Request.Context(), service.ActorFromContext(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (s *Server) handleRetryQueueItem(c *gin.Context) {
	item, err := s.QueueService.Retry(c.Request.Context(), service.ActorFromContext(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) handleQueueStats(c *gin.Context) {
	stats, err := s.QueueService.Stats(c.Request.Context(), service.ActorFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetProgress(c *gin.Context) {
	actor := service.ActorFromContext(c)
	if _, err := s.QueueService.Get(c.Request.Context(), actor, c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	snapshot, err := s.ProgressHub.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": snapshot})
}

func (s *Server) handleListPhases(c *gin.Context) {
	actor := service.ActorFromContext(c)
	if _, err := s.QueueService.Get(c.Request.Context(), actor, c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	phases, err := s.Orchestrator.Phases(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"phases": phases})
}

type approvalRequestInput struct {
	Notes string `json:"notes"`
}

func (s *Server) handleRequestApproval(c *gin.Context) {
	var input approvalRequestInput
	if err := c.ShouldBindJSON(&input); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	request, err := s.ApprovalService.Request(c.Request.Context(), service.ActorFromContext(c), c.Param("id"), input.Notes)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

func (s *Server) handleListApprovals(c *gin.Context) {
	requests, err := s.ApprovalService.ListForQueue(c.Request.Context(), service.ActorFromContext(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"approvals": requests})
}

type approvalDecisionInput struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

func (s *Server) handleDecideApproval(c *gin.Context) {
	var input approvalDecisionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	request, err := s.ApprovalService.Decide(
		c.Request.Context(),
		service.ActorFromContext(c),
		c.Param("id"),
		models.ApprovalStatus(input.Decision),
		input.Notes,
	)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

func (s *Server) handlePublish(c *gin.Context) {
	var input service.PublishInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	records, err := s.PublishingService.Publish(c.Request.Context(), service.ActorFromContext(c), c.Param("id"), input)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) handleListPublishingRecords(c *gin.Context) {
	records, err := s.PublishingService.Records(c.Request.Context(), service.ActorFromContext(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}
