package handlers

import (
	"net/http"
	"strconv"

	"encyclopedia-cms/services"

	"github.com/gin-gonic/gin"
)

type SearchHandler struct {
	searchService services.SearchService
}

func NewSearchHandler(searchService services.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return limit
}

func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	results, err := h.searchService.Search(c.Request.Context(), query, queryLimit(c))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"query": query, "results": results})
}

func (h *SearchHandler) Suggest(c *gin.Context) {
	titles, err := h.searchService.SuggestTitles(c.Request.Context(), c.Query("prefix"), queryLimit(c))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"titles": titles})
}

func (h *SearchHandler) Reindex(c *gin.Context) {
	id, ok := parseID(c, "article_id")
	if !ok {
		return
	}

	if err := h.searchService.Reindex(c.Request.Context(), id); err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Article reindexed"})
}

func (h *SearchHandler) Stale(c *gin.Context) {
	stale, err := h.searchService.Stale(c.Request.Context(), queryLimit(c))
	if err != nil {
		httpHelper.SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stale": stale})
}

func (h *SearchHandler) Resync(c *gin.Context) {
	n, err := h.searchService.Resync(c.Request.Context())
	if err != nil {
		c.JSON(httpHelper.GetStatusCode(err), gin.H{"reindexed": n, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reindexed": n})
}
