package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/reelsense/internal/service"
)

// ContentQuerier reads analyzed content.
type ContentQuerier interface {
	GetContent(ctx context.Context, contentID string) (*service.ContentDetail, error)
	ListContent(ctx context.Context, req service.ListRequest) (*service.ContentListResponse, error)
	SearchEntities(ctx context.Context, req *service.EntitySearchRequest) (*service.EntitySearchResponse, error)
	GetStats(ctx context.Context) (map[string]interface{}, error)
	OpenMedia(ctx context.Context, contentID string) (*service.MediaObject, error)
}

// ContentHandler handles content endpoints.
type ContentHandler struct {
	search ContentQuerier
}

// NewContentHandler creates a new content handler.
// Parameters:
//   - search: content query service.
//
// Returns:
//   - *ContentHandler: initialized handler.
func NewContentHandler(search ContentQuerier) *ContentHandler {
	return &ContentHandler{search: search}
}

// ListContent handles GET /api/v1/content.
// Query parameters: category, keyword (repeatable or comma separated), limit, offset.
func (h *ContentHandler) ListContent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	result, err := h.search.ListContent(c.Request.Context(), service.ListRequest{
		Category: c.Query("category"),
		Keywords: splitKeywords(c.QueryArray("keyword")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		abortWithError(c, statusFor(err), "Failed to list content", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RecentContent handles GET /api/v1/content/recent.
func (h *ContentHandler) RecentContent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.search.ListContent(c.Request.Context(), service.ListRequest{Limit: limit})
	if err != nil {
		abortWithError(c, statusFor(err), "Failed to list content", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetContent handles GET /api/v1/content/:id.
func (h *ContentHandler) GetContent(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		abortWithError(c, http.StatusBadRequest, "Content ID is required", nil)
		return
	}

	detail, err := h.search.GetContent(c.Request.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			abortWithError(c, status, "Content not found", nil)
			return
		}
		abortWithError(c, status, "Failed to load content", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GetMedia handles GET /api/v1/content/:id/media and streams the archived source media.
func (h *ContentHandler) GetMedia(c *gin.Context) {
	obj, err := h.search.OpenMedia(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			abortWithError(c, status, "Media not found", nil)
			return
		}
		abortWithError(c, status, "Failed to open media", err)
		return
	}
	defer obj.Body.Close()

	c.DataFromReader(http.StatusOK, -1, obj.ContentType, obj.Body, map[string]string{
		"Cache-Control": "public, max-age=86400",
	})
}

func splitKeywords(values []string) []string {
	var out []string
	for _, v := range values {
		for _, kw := range strings.Split(v, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				out = append(out, kw)
			}
		}
	}
	return out
}
