package blobcache

import (
	"github.com/gin-gonic/gin"

	"github.com/lumina-signage/backend/pkg/response"
)

// Handler serves cached media blobs to renderers.
type Handler struct {
	cache *Cache
}

// NewHandler creates a media-serving handler.
func NewHandler(cache *Cache) *Handler {
	return &Handler{cache: cache}
}

// Serve handles GET /media/:id, streaming the cached entry with range support
// so video renderers can seek.
func (h *Handler) Serve(c *gin.Context) {
	id := c.Param("id")
	if !ValidID(id) {
		response.BadRequest(c, "invalid media id")
		return
	}
	path, ok := h.cache.Path(id)
	if !ok {
		response.NotFound(c, "media not cached")
		return
	}
	c.File(path)
}
