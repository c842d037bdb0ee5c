package handlers

import (
	"net/http"
	"strconv"

	"encyclopedia-cms/middleware"
	"encyclopedia-cms/models"
	"encyclopedia-cms/services"

	"github.com/gin-gonic/gin"
)

var httpHelper = middleware.HTTPHelper

// parseID reads a numeric path parameter and answers 400 when it is not one.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

type ArticleHandler struct {
	revisionService services.RevisionService
}

func NewArticleHandler(revisionService services.RevisionService) *ArticleHandler {
	return &ArticleHandler{revisionService: revisionService}
}

func (h *ArticleHandler) SubmitRevision(c *gin.Context) {
	var req models.SubmitRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.AuthorID = middleware.ActorFrom(c).ID

	res, err := h.revisionService.SubmitRevision(c.Request.Context(), req)
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (h *ArticleHandler) GetArticles(c *gin.Context) {
	var params models.ArticleListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Set defaults
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Limit <= 0 {
		params.Limit = 10
	}

	articles, total, err := h.revisionService.ListArticles(c.Request.Context(), params)
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": articles,
		"total":    total,
		"page":     params.Page,
		"limit":    params.Limit,
		"paging":   httpHelper.GeneratePaging(c, 0, 0, params.Limit, params.Page, int(total)),
	})
}

// GetPublicArticle serves the current revision. Articles that have never
// had a revision approved are not visible to readers.
func (h *ArticleHandler) GetPublicArticle(c *gin.Context) {
	view, err := h.revisionService.GetCurrent(c.Request.Context(), c.Param("title"))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}
	if view.Current == nil {
		httpHelper.SendServiceError(c, models.ErrorNotFound{Resource: "article", Key: view.Article.Title})
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *ArticleHandler) GetHistory(c *gin.Context) {
	revisions, err := h.revisionService.GetHistory(c.Request.Context(), c.Param("title"))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"revisions": revisions, "total": len(revisions)})
}

func (h *ArticleHandler) RemoveArticle(c *gin.Context) {
	err := h.revisionService.RemoveArticle(c.Request.Context(), c.Param("title"), middleware.ActorFrom(c))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Article removed"})
}

func (h *ArticleHandler) GetRevision(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	rev, err := h.revisionService.GetRevision(c.Request.Context(), id)
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, rev)
}

func (h *ArticleHandler) PromoteRevision(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	view, err := h.revisionService.PromoteToCurrent(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
