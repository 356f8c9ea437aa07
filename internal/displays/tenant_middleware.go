package displays

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumina-signage/backend/internal/middleware"
	"github.com/lumina-signage/backend/internal/models"
	"github.com/lumina-signage/backend/internal/tenants"
	"github.com/lumina-signage/backend/pkg/response"
)

// ContextTenantID is the context key for the display's tenant ID once access
// has been enforced.
const ContextTenantID = "tenant_id"

// RequireDisplayTenantAccess validates that the caller may act on the display
// in the :id parameter. Platform admins pass; operators must be members of
// the display's tenant; device tokens pass only for their own display.
func RequireDisplayTenantAccess(displayRepo *Repository, tenantRepo *tenants.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		displayID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid display id")
			c.Abort()
			return
		}
		d, err := displayRepo.GetByID(c.Request.Context(), displayID)
		if err != nil || d == nil {
			response.NotFound(c, "display not found")
			c.Abort()
			return
		}
		if devVal, ok := c.Get(middleware.ContextDisplayID); ok {
			if devVal.(uuid.UUID) != displayID {
				response.Forbidden(c, "device token not valid for this display")
				c.Abort()
				return
			}
			c.Set(ContextTenantID, d.TenantID)
			c.Next()
			return
		}
		role, _ := c.MustGet(middleware.ContextUserRole).(string)
		if role == string(models.RoleAdmin) {
			c.Set(ContextTenantID, d.TenantID)
			c.Next()
			return
		}
		userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
		ok, _ := tenantRepo.UserHasTenantAccess(c.Request.Context(), d.TenantID, userID)
		if !ok {
			response.Forbidden(c, "not authorized for this tenant")
			c.Abort()
			return
		}
		c.Set(ContextTenantID, d.TenantID)
		c.Next()
	}
}
