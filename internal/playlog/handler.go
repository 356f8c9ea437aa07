package playlog

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumina-signage/backend/pkg/response"
)

// Handler handles proof-of-play reporting endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a playback log handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// timeRange parses optional ?from= and ?to= (RFC3339), defaulting to the
// last 24 hours.
func timeRange(c *gin.Context) (time.Time, time.Time, bool) {
	to := time.Now()
	from := to.Add(-24 * time.Hour)
	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			response.BadRequest(c, "invalid from")
			return from, to, false
		}
		from = t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			response.BadRequest(c, "invalid to")
			return from, to, false
		}
		to = t
	}
	return from, to, true
}

// List handles GET /displays/:id/playlog.
func (h *Handler) List(c *gin.Context) {
	displayID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	from, to, ok := timeRange(c)
	if !ok {
		return
	}
	list, err := h.repo.ListByDisplay(c.Request.Context(), displayID, from, to, 0)
	if err != nil {
		response.Internal(c, "failed to list playback log")
		return
	}
	response.OK(c, gin.H{"entries": list, "from": from, "to": to})
}

// Aggregates handles GET /displays/:id/playlog/aggregates.
func (h *Handler) Aggregates(c *gin.Context) {
	displayID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	from, to, ok := timeRange(c)
	if !ok {
		return
	}
	aggs, err := h.repo.AggregateByDisplay(c.Request.Context(), displayID, from, to)
	if err != nil {
		response.Internal(c, "failed to aggregate playback log")
		return
	}
	response.OK(c, gin.H{"aggregates": aggs, "from": from, "to": to})
}
