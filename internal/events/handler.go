package events

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/auth"
	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
	"github.com/upeu-eventos/gateway/pkg/response"
)

// Handler handles event HTTP endpoints.
type Handler struct {
	svc     *Service
	admin   *Loader
	student *Loader
	logger  *zap.Logger
}

// NewHandler creates an event handler over the admin and student views.
func NewHandler(svc *Service, admin, student *Loader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, admin: admin, student: student, logger: logger}
}

// ParseID reads a positive int64 path parameter.
func ParseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) views(c *gin.Context, l *Loader) ([]models.EventView, bool) {
	if c.Query("refresh") == "true" || !l.Store().Loaded() {
		views, err := l.LoadAll(c.Request.Context())
		if err != nil {
			h.logger.Error("load events failed", zap.Error(err))
			response.BadGateway(c, "failed to load events")
			return nil, false
		}
		return views, true
	}
	return l.Store().List(), true
}

// ListPublished handles GET /events (published events, student view).
func (h *Handler) ListPublished(c *gin.Context) {
	views, ok := h.views(c, h.student)
	if !ok {
		return
	}
	out := Filter(views, c.Query("q"), string(models.EventPublished))
	response.OK(c, out)
}

// AdminList handles GET /admin/events?q=&tab=all|published|draft.
func (h *Handler) AdminList(c *gin.Context) {
	views, ok := h.views(c, h.admin)
	if !ok {
		return
	}
	tab := c.DefaultQuery("tab", "all")
	switch tab {
	case "all", string(models.EventPublished), string(models.EventDraft):
	default:
		response.BadRequest(c, "tab must be all, published or draft")
		return
	}
	response.OK(c, gin.H{
		"events": Filter(views, c.Query("q"), tab),
		"totals": Summarize(views),
	})
}

// Get handles GET /admin/events/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	v, found := h.admin.Store().Get(id)
	if !found {
		response.NotFound(c, "event not found")
		return
	}
	response.OK(c, v)
}

// Create handles POST /admin/events.
func (h *Handler) Create(c *gin.Context) {
	var in EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	uid, _ := c.Get(auth.ContextUserID)
	creator, _ := uid.(int64)
	v, report, err := h.svc.Create(c.Request.Context(), in, creator)
	if h.writeError(c, err) {
		return
	}
	response.Created(c, gin.H{"event": v, "report": report})
}

// Update handles PUT /admin/events/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var in EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	uid, _ := c.Get(auth.ContextUserID)
	editor, _ := uid.(int64)
	v, report, err := h.svc.Update(c.Request.Context(), id, in, editor)
	if h.writeError(c, err) {
		return
	}
	response.OK(c, gin.H{"event": v, "report": report})
}

// Delete handles DELETE /admin/events/:id?confirm=true.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	if c.Query("confirm") != "true" {
		response.BadRequest(c, "deleting an event requires confirm=true")
		return
	}
	if h.writeError(c, h.svc.Delete(c.Request.Context(), id)) {
		return
	}
	response.NoContent(c)
}

func (h *Handler) writeError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidEvent), errors.Is(err, ErrNoPaymentMethods):
		response.BadRequest(c, err.Error())
	case errors.Is(err, upstream.ErrNotFound):
		response.NotFound(c, "event not found")
	default:
		h.logger.Error("event pipeline failed", zap.Error(err))
		response.BadGateway(c, "events service unavailable")
	}
	return true
}
