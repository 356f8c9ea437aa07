package tenants

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumina-signage/backend/internal/middleware"
	"github.com/lumina-signage/backend/internal/models"
	"github.com/lumina-signage/backend/pkg/response"
)

// Handler handles tenant HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a tenants handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// CreateTenantRequest is the body for POST /tenants.
type CreateTenantRequest struct {
	Name string `json:"name" binding:"required"`
}

// JoinTenantRequest is the body for POST /tenants/join.
type JoinTenantRequest struct {
	InviteCode string `json:"invite_code" binding:"required"`
}

func newInviteCode() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Create handles POST /tenants. Creates the tenant and adds the current user as owner.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body CreateTenantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name required")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.BadRequest(c, "name must be 1-255 characters")
		return
	}
	t := &models.Tenant{Name: body.Name, InviteCode: newInviteCode(), CreatedBy: userID}
	if err := h.repo.Create(c.Request.Context(), t); err != nil {
		response.Internal(c, "failed to create tenant")
		return
	}
	if err := h.repo.AddMember(c.Request.Context(), t.ID, userID, RoleOwner); err != nil {
		response.Internal(c, "failed to add you as owner")
		return
	}
	response.Created(c, t)
}

// Join handles POST /tenants/join. Adds the current user by invite code.
func (h *Handler) Join(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body JoinTenantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invite_code required")
		return
	}
	code := strings.TrimSpace(body.InviteCode)
	if code == "" {
		response.BadRequest(c, "invite_code required")
		return
	}
	t, err := h.repo.GetByInviteCode(c.Request.Context(), code)
	if err != nil || t == nil {
		response.NotFound(c, "tenant not found")
		return
	}
	if err := h.repo.AddMember(c.Request.Context(), t.ID, userID, RoleMember); err != nil {
		response.Internal(c, "failed to join tenant")
		return
	}
	response.OK(c, t)
}

// ListMine handles GET /tenants. Returns tenants the current user belongs to.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load tenants")
		return
	}
	response.OK(c, list)
}

// ListMembers handles GET /tenants/:id/members. Requires tenant membership.
func (h *Handler) ListMembers(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid tenant id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ok, err := h.repo.UserHasTenantAccess(c.Request.Context(), tenantID, userID)
	if err != nil || !ok {
		response.Forbidden(c, "not authorized for this tenant")
		return
	}
	members, err := h.repo.ListMembers(c.Request.Context(), tenantID)
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	response.OK(c, members)
}
