package displays

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-signage/backend/internal/auth"
	"github.com/lumina-signage/backend/internal/models"
	"github.com/lumina-signage/backend/pkg/response"
	"github.com/lumina-signage/backend/pkg/utils"
)

const pairingCodeLength = 8

// Excludes ambiguous characters (0/O, 1/I) so codes survive being read aloud.
const pairingCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CreateRequest is the body for POST /tenants/:id/displays.
type CreateRequest struct {
	Name     string `json:"name" binding:"required"`
	Location string `json:"location"`
	Timezone string `json:"timezone" binding:"required"`
}

// UpdateRequest is the body for PATCH /displays/:id.
type UpdateRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Timezone *string `json:"timezone"`
	IsActive *bool   `json:"is_active"`
}

// PairRequest is the body for POST /displays/:id/pair (unauthenticated).
type PairRequest struct {
	PairingCode string `json:"pairing_code" binding:"required"`
}

// Handler handles display HTTP endpoints.
type Handler struct {
	repo   *Repository
	jwt    *auth.JWTService
	logger *zap.Logger
}

// NewHandler creates a displays handler.
func NewHandler(repo *Repository, jwt *auth.JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, logger: logger}
}

func newPairingCode() string {
	b := make([]byte, pairingCodeLength)
	for i := range b {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(pairingCodeAlphabet))))
		b[i] = pairingCodeAlphabet[n.Int64()]
	}
	return string(b)
}

// Create handles POST /tenants/:id/displays. The pairing code is returned
// exactly once; only its hash is stored.
func (h *Handler) Create(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid tenant id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		response.BadRequest(c, "invalid timezone")
		return
	}
	code := newPairingCode()
	hash, err := utils.HashPassword(code)
	if err != nil {
		response.Internal(c, "failed to generate pairing code")
		return
	}
	d := &models.Display{
		TenantID:        tenantID,
		Name:            req.Name,
		Location:        req.Location,
		Timezone:        req.Timezone,
		PairingCodeHash: hash,
		IsActive:        true,
	}
	if err := h.repo.Create(c.Request.Context(), d); err != nil {
		h.logger.Error("create display failed", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		response.Internal(c, "failed to create display")
		return
	}
	response.Created(c, gin.H{"display": d, "pairing_code": code})
}

// List handles GET /tenants/:id/displays.
func (h *Handler) List(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid tenant id")
		return
	}
	list, err := h.repo.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		response.Internal(c, "failed to list displays")
		return
	}
	response.OK(c, list)
}

// Get handles GET /displays/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	d, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "display not found")
		return
	}
	response.OK(c, d)
}

// Update handles PATCH /displays/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request")
		return
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			response.BadRequest(c, "invalid timezone")
			return
		}
	}
	if err := h.repo.Update(c.Request.Context(), id, req.Name, req.Location, req.Timezone, req.IsActive); err != nil {
		response.Internal(c, "failed to update display")
		return
	}
	updated, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "display not found")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /displays/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, "failed to delete display")
		return
	}
	response.NoContent(c)
}

// RegeneratePairingCode handles POST /displays/:id/pairing-code. Invalidates
// the old code and returns a fresh one exactly once.
func (h *Handler) RegeneratePairingCode(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	if _, err := h.repo.GetByID(c.Request.Context(), id); err != nil {
		response.NotFound(c, "display not found")
		return
	}
	code := newPairingCode()
	hash, err := utils.HashPassword(code)
	if err != nil {
		response.Internal(c, "failed to generate pairing code")
		return
	}
	if err := h.repo.SetPairingCodeHash(c.Request.Context(), id, hash); err != nil {
		response.Internal(c, "failed to store pairing code")
		return
	}
	response.OK(c, gin.H{"display_id": id, "pairing_code": code})
}

// Pair handles POST /displays/:id/pair. A renderer exchanges its pairing
// code for a device token scoped to this display.
func (h *Handler) Pair(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	var req PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "pairing_code required")
		return
	}
	d, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "display not found")
		return
	}
	if !d.IsActive {
		response.Forbidden(c, "display is deactivated")
		return
	}
	if !utils.CheckPassword(req.PairingCode, d.PairingCodeHash) {
		response.Unauthorized(c, "invalid pairing code")
		return
	}
	token, err := h.jwt.GenerateDeviceToken(d.ID)
	if err != nil {
		response.Internal(c, "failed to issue device token")
		return
	}
	h.logger.Info("display paired", zap.String("display_id", d.ID.String()), zap.String("tenant_id", d.TenantID.String()))
	response.OK(c, gin.H{"device_token": token, "display": d})
}
