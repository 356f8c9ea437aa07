package schedule

import (
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-signage/backend/internal/models"
	"github.com/lumina-signage/backend/pkg/queue"
	"github.com/lumina-signage/backend/pkg/response"
	"github.com/lumina-signage/backend/pkg/storage"
)

// ScheduleRequest is the body for creating or updating a schedule.
type ScheduleRequest struct {
	Enabled          *bool  `json:"enabled"`
	MediaType        string `json:"media_type" binding:"required"`
	ContentRef       string `json:"content_ref" binding:"required"`
	S3Key            string `json:"s3_key"`
	Title            string `json:"title" binding:"required"`
	Caption          string `json:"caption"`
	FrequencySeconds int    `json:"frequency_seconds" binding:"required"`
	DurationSeconds  int    `json:"duration_seconds"`
	PlayCount        int    `json:"play_count"`
	StartsOn         string `json:"starts_on" binding:"required"` // 2006-01-02
	EndsOn           string `json:"ends_on" binding:"required"`
	TimeStart        string `json:"time_start" binding:"required"` // 15:04
	TimeEnd          string `json:"time_end" binding:"required"`
	DaysOfWeek       []int  `json:"days_of_week" binding:"required"`
	Priority         *int   `json:"priority"`
	Animation        string `json:"animation"`
}

// UploadURLRequest is the body for POST /displays/:id/schedules/generate-upload-url.
type UploadURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size" binding:"required,gt=0"`
}

// Invalidator drops cached catalog snapshots after edits.
type Invalidator interface {
	Invalidate(displayID uuid.UUID)
}

// Handler handles the schedule configuration API.
type Handler struct {
	repo    *Repository
	s3      *storage.S3
	catalog Invalidator
	queue   *queue.Queue
	logger  *zap.Logger
}

// NewHandler creates a schedule handler. s3, catalog, and queue may be nil.
func NewHandler(repo *Repository, s3 *storage.S3, catalog Invalidator, q *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, s3: s3, catalog: catalog, queue: q, logger: logger}
}

// Create handles POST /displays/:id/schedules.
func (h *Handler) Create(c *gin.Context) {
	displayID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := req.toModel()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	s.DisplayID = displayID
	if err := h.repo.Create(c.Request.Context(), s); err != nil {
		h.logger.Error("create schedule failed", zap.Error(err), zap.String("display_id", displayID.String()))
		response.Internal(c, "create schedule failed")
		return
	}
	h.invalidate(displayID)
	h.prefetch(c, s)
	response.Created(c, s)
}

// List handles GET /displays/:id/schedules.
func (h *Handler) List(c *gin.Context) {
	displayID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	list, err := h.repo.ListByDisplay(c.Request.Context(), displayID)
	if err != nil {
		response.Internal(c, "list schedules failed")
		return
	}
	response.OK(c, list)
}

// Get handles GET /schedules/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "schedule not found")
		return
	}
	response.OK(c, s)
}

// Update handles PUT /schedules/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	existing, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "schedule not found")
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := req.toModel()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	s.ID = existing.ID
	s.DisplayID = existing.DisplayID
	if err := h.repo.Update(c.Request.Context(), s); err != nil {
		h.logger.Error("update schedule failed", zap.Error(err), zap.String("schedule_id", id.String()))
		response.Internal(c, "update schedule failed")
		return
	}
	h.invalidate(existing.DisplayID)
	response.OK(c, s)
}

// Toggle handles PATCH /schedules/:id/toggle.
func (h *Handler) Toggle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "schedule not found")
		return
	}
	enabled, err := h.repo.Toggle(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "toggle schedule failed")
		return
	}
	h.invalidate(s.DisplayID)
	response.OK(c, gin.H{"id": id, "enabled": enabled})
}

// Delete handles DELETE /schedules/:id. The stored creative is removed as well.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "schedule not found")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, "delete schedule failed")
		return
	}
	if h.s3 != nil && s.S3Key != "" {
		if err := h.s3.DeleteCreative(c.Request.Context(), s.S3Key); err != nil {
			h.logger.Warn("delete creative object failed", zap.Error(err), zap.String("s3_key", s.S3Key))
		}
	}
	h.invalidate(s.DisplayID)
	response.NoContent(c)
}

// GenerateUploadURL handles POST /displays/:id/schedules/generate-upload-url:
// a presigned PUT for direct creative upload.
func (h *Handler) GenerateUploadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "media storage not configured")
		return
	}
	displayID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.FileSize > storage.MaxCreativeFileSize {
		response.BadRequest(c, "file size exceeds limit")
		return
	}
	if !storage.ValidateCreativeType(req.ContentType, req.Filename) {
		response.BadRequest(c, "invalid file type: only image (jpg, png, webp, gif) and video (mp4, webm) allowed")
		return
	}
	contentType := storage.ContentTypeForFilename(req.Filename)
	key := storage.CreativeKey(displayID.String(), req.Filename)
	expire := h.s3.PresignExpire()
	url, err := h.s3.GeneratePresignedUploadURL(c.Request.Context(), h.s3.MediaBucket(), key, contentType, expire)
	if err != nil {
		h.logger.Error("generate presigned upload URL failed", zap.Error(err), zap.String("display_id", displayID.String()))
		response.Internal(c, "media storage unavailable")
		return
	}
	response.OK(c, gin.H{
		"upload_url":   url,
		"s3_key":       key,
		"content_type": contentType,
		"public_url":   h.s3.PublicObjectURL(h.s3.MediaBucket(), key),
		"expires_in":   int(expire.Seconds()),
	})
}

// Upload handles POST /displays/:id/schedules/upload: server-side multipart
// upload for small creatives.
func (h *Handler) Upload(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "media storage not configured")
		return
	}
	displayID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid display id")
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file field required")
		return
	}
	defer file.Close()
	if header.Size > storage.MaxCreativeFileSize {
		response.BadRequest(c, "file size exceeds limit")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !storage.ValidateCreativeType(contentType, header.Filename) {
		response.BadRequest(c, "invalid file type")
		return
	}
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(header.Filename)
	}
	key := storage.CreativeKey(displayID.String(), header.Filename)
	url, err := h.s3.Upload(c.Request.Context(), h.s3.MediaBucket(), key, contentType, io.Reader(file), header.Size, true)
	if err != nil {
		h.logger.Error("creative upload failed", zap.Error(err), zap.String("display_id", displayID.String()))
		response.Internal(c, "upload failed")
		return
	}
	response.Created(c, gin.H{"url": url, "s3_key": key, "content_type": contentType, "size": header.Size})
}

func (h *Handler) invalidate(displayID uuid.UUID) {
	if h.catalog != nil {
		h.catalog.Invalidate(displayID)
	}
}

// prefetch warms the blob cache for video creatives so the first trigger does
// not pay the download.
func (h *Handler) prefetch(c *gin.Context, s *models.AdvertisementSchedule) {
	if h.queue == nil || s.MediaType != models.MediaTypeVideo {
		return
	}
	err := h.queue.EnqueueMediaPrefetch(c.Request.Context(), queue.MediaPrefetchPayload{
		ScheduleID: s.ID,
		DisplayID:  s.DisplayID,
		ContentRef: s.ContentRef,
	})
	if err != nil {
		h.logger.Warn("enqueue media prefetch failed", zap.Error(err), zap.String("schedule_id", s.ID.String()))
	}
}

func (r ScheduleRequest) toModel() (*models.AdvertisementSchedule, error) {
	mt := models.MediaType(r.MediaType)
	if mt != models.MediaTypeImage && mt != models.MediaTypeVideo {
		return nil, fmt.Errorf("media_type must be image or video")
	}
	if r.FrequencySeconds < models.MinFrequencySeconds {
		return nil, fmt.Errorf("frequency_seconds must be at least %d", models.MinFrequencySeconds)
	}
	startsOn, err := time.Parse("2006-01-02", r.StartsOn)
	if err != nil {
		return nil, fmt.Errorf("starts_on must be YYYY-MM-DD")
	}
	endsOn, err := time.Parse("2006-01-02", r.EndsOn)
	if err != nil {
		return nil, fmt.Errorf("ends_on must be YYYY-MM-DD")
	}
	if endsOn.Before(startsOn) {
		return nil, fmt.Errorf("ends_on is before starts_on")
	}
	if _, err := time.Parse("15:04", r.TimeStart); err != nil {
		return nil, fmt.Errorf("time_start must be HH:MM")
	}
	if _, err := time.Parse("15:04", r.TimeEnd); err != nil {
		return nil, fmt.Errorf("time_end must be HH:MM")
	}
	if len(r.DaysOfWeek) == 0 {
		return nil, fmt.Errorf("days_of_week must not be empty")
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("days_of_week values must be 0..6")
		}
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	playCount := r.PlayCount
	if playCount < 1 {
		playCount = 1
	}
	return &models.AdvertisementSchedule{
		Enabled:          enabled,
		MediaType:        mt,
		ContentRef:       r.ContentRef,
		S3Key:            r.S3Key,
		Title:            r.Title,
		Caption:          r.Caption,
		FrequencySeconds: r.FrequencySeconds,
		DurationSeconds:  r.DurationSeconds,
		PlayCount:        playCount,
		StartsOn:         startsOn,
		EndsOn:           endsOn,
		TimeStart:        r.TimeStart,
		TimeEnd:          r.TimeEnd,
		DaysOfWeek:       r.DaysOfWeek,
		Priority:         r.Priority,
		Animation:        r.Animation,
	}, nil
}
