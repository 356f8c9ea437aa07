package displays

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Resolver adapts the repository to lookups keyed by display ID, used by the
// playback engine to pick the evaluation timezone.
type Resolver struct {
	repo *Repository
}

// NewResolver creates a display resolver.
func NewResolver(repo *Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Timezone returns the display's timezone name, or false if the display does
// not exist or is deactivated.
func (r *Resolver) Timezone(c *gin.Context, displayID uuid.UUID) (string, bool) {
	d, err := r.repo.GetByID(c.Request.Context(), displayID)
	if err != nil || d == nil || !d.IsActive {
		return "", false
	}
	return d.Timezone, true
}
