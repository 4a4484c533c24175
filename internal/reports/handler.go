package reports

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/events"
	"github.com/upeu-eventos/gateway/pkg/response"
)

const csvContentType = "text/csv; charset=utf-8"

// Handler serves report downloads.
type Handler struct {
	exp    *Exporter
	logger *zap.Logger
}

// NewHandler creates a reports handler.
func NewHandler(exp *Exporter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{exp: exp, logger: logger}
}

// Download handles GET /admin/events/:id/report.
func (h *Handler) Download(c *gin.Context) {
	eventID, ok := events.ParseID(c, "id")
	if !ok {
		return
	}
	data, _, err := h.exp.Export(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Warn("export report", zap.Int64("event_id", eventID), zap.Error(err))
		response.BadGateway(c, "failed to load registrations")
		return
	}
	attachment(c, Filename(eventID), data)
}

// Upload handles POST /admin/events/:id/report/upload.
func (h *Handler) Upload(c *gin.Context) {
	eventID, ok := events.ParseID(c, "id")
	if !ok {
		return
	}
	up, err := h.exp.Upload(c.Request.Context(), eventID)
	switch {
	case errors.Is(err, ErrStorageDisabled):
		response.ServiceUnavailable(c, err.Error())
	case err != nil:
		h.logger.Error("upload report", zap.Int64("event_id", eventID), zap.Error(err))
		response.BadGateway(c, "failed to upload report")
	default:
		response.Created(c, up)
	}
}

// Template handles GET /admin/codes/template.
func (h *Handler) Template(c *gin.Context) {
	attachment(c, TemplateFilename, Template())
}

func attachment(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, csvContentType, data)
}
