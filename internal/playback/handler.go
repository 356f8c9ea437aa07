package playback

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-signage/backend/pkg/response"
)

// DisplayResolver checks displays exist and resolves their timezone.
type DisplayResolver interface {
	Timezone(c *gin.Context, displayID uuid.UUID) (string, bool)
}

// Handler exposes the playback engine over HTTP: engine start/stop plus the
// renderer-facing accessors (current ad, caching progress, queue position).
type Handler struct {
	registry *Registry
	displays DisplayResolver
	logger   *zap.Logger
}

// NewHandler creates a playback handler.
func NewHandler(registry *Registry, displays DisplayResolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, displays: displays, logger: logger}
}

// Start handles POST /displays/:id/playback/start.
func (h *Handler) Start(c *gin.Context) {
	displayID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	tz, ok := h.displays.Timezone(c, displayID)
	if !ok {
		response.NotFound(c, "display not found")
		return
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		h.logger.Warn("bad display timezone, using server zone",
			zap.String("timezone", tz), zap.String("display_id", displayID.String()))
		loc = time.Local
	}
	h.registry.Start(displayID, func(o *Options) {
		o.Location = loc
		o.Now = func() time.Time { return time.Now().In(loc) }
	})
	response.OK(c, gin.H{"running": true})
}

// Stop handles POST /displays/:id/playback/stop.
func (h *Handler) Stop(c *gin.Context) {
	displayID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	h.registry.Stop(displayID)
	response.OK(c, gin.H{"running": false})
}

// Current handles GET /displays/:id/playback/current: the ad now interrupting
// normal content, or phase=idle with no ad.
func (h *Handler) Current(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	index, total := ctrl.QueuePosition()
	response.OK(c, gin.H{
		"phase": ctrl.Phase(),
		"ad":    ctrl.CurrentAd(),
		"index": index,
		"total": total,
	})
}

// Progress handles GET /displays/:id/playback/progress (caching progress of
// the active item).
func (h *Handler) Progress(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	response.OK(c, ctrl.Progress())
}

func (h *Handler) controller(c *gin.Context) (*Controller, bool) {
	displayID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return nil, false
	}
	ctrl := h.registry.Get(displayID)
	if ctrl == nil {
		response.NotFound(c, "playback not running for display")
		return nil, false
	}
	return ctrl, true
}
