package handlers

import (
	"net/http"

	"encyclopedia-cms/middleware"
	"encyclopedia-cms/models"
	"encyclopedia-cms/services"

	"github.com/gin-gonic/gin"
)

type ReviewHandler struct {
	reviewService services.PeerReviewService
}

func NewReviewHandler(reviewService services.PeerReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

func (h *ReviewHandler) AssignReviewer(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.AssignReviewerRequest
	// An empty body means self-assignment.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	review, err := h.reviewService.AssignReviewer(c.Request.Context(), id, req.ReviewerID, middleware.ActorFrom(c))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

func (h *ReviewHandler) ListReviews(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	reviews, err := h.reviewService.ListReviews(c.Request.Context(), id)
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func (h *ReviewHandler) StartReview(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	review, err := h.reviewService.StartReview(c.Request.Context(), id, middleware.ActorFrom(c).ID)
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

func (h *ReviewHandler) SubmitReview(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ReviewID = id
	req.ReviewerID = middleware.ActorFrom(c).ID

	review, err := h.reviewService.SubmitReview(c.Request.Context(), req)
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

func (h *ReviewHandler) GetConsensus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	summary, err := h.reviewService.Summary(c.Request.Context(), id)
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *ReviewHandler) ReviewerStats(c *gin.Context) {
	stats, err := h.reviewService.ReviewerStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
