package handlers

import (
	"net/http"

	"encyclopedia-cms/middleware"
	"encyclopedia-cms/models"
	"encyclopedia-cms/services"

	"github.com/gin-gonic/gin"
)

type ModerationHandler struct {
	moderationService services.ModerationService
}

func NewModerationHandler(moderationService services.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderationService: moderationService}
}

func (h *ModerationHandler) ListQueue(c *gin.Context) {
	var filter models.QueueFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, total, err := h.moderationService.ListQueue(c.Request.Context(), filter)
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (h *ModerationHandler) BeginReview(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	entry, err := h.moderationService.BeginReview(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (h *ModerationHandler) Assign(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.moderationService.Assign(c.Request.Context(), id, req.ModeratorID, middleware.ActorFrom(c))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (h *ModerationHandler) Resolve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.moderationService.Resolve(c.Request.Context(), id, req.Outcome, req.Reason, middleware.ActorFrom(c))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (h *ModerationHandler) Stats(c *gin.Context) {
	stats, err := h.moderationService.Stats(c.Request.Context())
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *ModerationHandler) ListActions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	actions, err := h.moderationService.ListActions(c.Request.Context(), id)
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": actions})
}
