package attendance

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/events"
	"github.com/upeu-eventos/gateway/pkg/response"
)

// RecordRequest is the body for POST /admin/events/:id/attendance.
type RecordRequest struct {
	Input string `json:"input" binding:"required"`
	Mode  Mode   `json:"mode" binding:"required"`
}

// Handler handles attendance endpoints.
type Handler struct {
	rec    *Recorder
	logger *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(rec *Recorder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{rec: rec, logger: logger}
}

// Board handles GET /admin/events/:id/attendance[?refresh=true].
func (h *Handler) Board(c *gin.Context) {
	eventID, ok := events.ParseID(c, "id")
	if !ok {
		return
	}
	var (
		snap Snapshot
		err  error
	)
	if c.Query("refresh") == "true" {
		snap, err = h.rec.Open(c.Request.Context(), eventID)
	} else {
		snap, err = h.rec.Snapshot(c.Request.Context(), eventID)
	}
	if err != nil {
		h.logger.Warn("open attendance board", zap.Int64("event_id", eventID), zap.Error(err))
		response.BadGateway(c, "failed to load registrations")
		return
	}
	response.OK(c, snap)
}

// Record handles POST /admin/events/:id/attendance.
func (h *Handler) Record(c *gin.Context) {
	eventID, ok := events.ParseID(c, "id")
	if !ok {
		return
	}
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	out, err := h.rec.Record(c.Request.Context(), eventID, req.Input, req.Mode)
	h.write(c, out, err)
}

// RecordByID handles POST /admin/events/:id/attendance/:registrationId.
func (h *Handler) RecordByID(c *gin.Context) {
	eventID, ok := events.ParseID(c, "id")
	if !ok {
		return
	}
	regID, err := strconv.ParseInt(c.Param("registrationId"), 10, 64)
	if err != nil || regID <= 0 {
		response.BadRequest(c, "invalid registrationId")
		return
	}
	out, err := h.rec.RecordByID(c.Request.Context(), eventID, regID)
	h.write(c, out, err)
}

func (h *Handler) write(c *gin.Context, out Outcome, err error) {
	switch {
	case errors.Is(err, ErrUnknownMode):
		response.BadRequest(c, err.Error())
	case err != nil:
		response.BadGateway(c, "failed to record attendance")
	default:
		response.OK(c, out)
	}
}
