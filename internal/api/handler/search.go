package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/reelsense/internal/service"
)

// SearchEntities handles POST /api/v1/entities/search.
func (h *ContentHandler) SearchEntities(c *gin.Context) {
	var req service.EntitySearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}
	h.searchEntities(c, &req)
}

// SearchEntitiesGet handles GET /api/v1/entities/search?q=...
func (h *ContentHandler) SearchEntitiesGet(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		abortWithError(c, http.StatusBadRequest, "Query parameter 'q' is required", nil)
		return
	}
	topK, _ := strconv.Atoi(c.Query("top_k"))
	h.searchEntities(c, &service.EntitySearchRequest{
		Query:    query,
		TopK:     topK,
		Category: c.Query("category"),
	})
}

func (h *ContentHandler) searchEntities(c *gin.Context, req *service.EntitySearchRequest) {
	result, err := h.search.SearchEntities(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, statusFor(err), "Search failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetStats handles GET /api/v1/stats.
func (h *ContentHandler) GetStats(c *gin.Context) {
	stats, err := h.search.GetStats(c.Request.Context())
	if err != nil {
		abortWithError(c, statusFor(err), "Failed to get stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
