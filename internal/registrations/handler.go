package registrations

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/auth"
	"github.com/upeu-eventos/gateway/internal/events"
	"github.com/upeu-eventos/gateway/internal/models"
	"github.com/upeu-eventos/gateway/internal/upstream"
	"github.com/upeu-eventos/gateway/pkg/response"
)

// RegisterRequest is the body for POST /events/:id/register. Payment fields are
// only read for paid events.
type RegisterRequest struct {
	PaymentMethod    string `json:"payment_method"`
	PaymentReference string `json:"payment_reference"`
}

// Handler handles student registration endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register handles POST /events/:id/register.
func (h *Handler) Register(c *gin.Context) {
	eventID, ok := events.ParseID(c, "id")
	if !ok {
		return
	}
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req RegisterRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	payment := &models.PaymentInfo{Method: req.PaymentMethod, Reference: req.PaymentReference}
	receipt, err := h.svc.Register(c.Request.Context(), user, eventID, payment)
	if err != nil {
		h.writeError(c, eventID, err)
		return
	}
	response.Created(c, receipt)
}

// Mine handles GET /me/registrations.
func (h *Handler) Mine(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.svc.Mine(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Warn("list own registrations", zap.Int64("user_id", user.ID), zap.Error(err))
		response.BadGateway(c, "failed to load registrations")
		return
	}
	response.OK(c, list)
}

// PaymentMethods handles GET /events/:id/payment-methods.
func (h *Handler) PaymentMethods(c *gin.Context) {
	eventID, ok := events.ParseID(c, "id")
	if !ok {
		return
	}
	opts, err := h.svc.PaymentOptions(c.Request.Context(), eventID)
	if err != nil {
		h.writeError(c, eventID, err)
		return
	}
	response.OK(c, opts)
}

func currentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(auth.ContextUser)
	if !ok {
		response.Unauthorized(c, "not signed in")
		return models.User{}, false
	}
	user, ok := v.(models.User)
	if !ok {
		response.Unauthorized(c, "not signed in")
		return models.User{}, false
	}
	return user, true
}

func (h *Handler) writeError(c *gin.Context, eventID int64, err error) {
	var payErr *PaymentRequiredError
	switch {
	case errors.As(err, &payErr):
		response.PaymentRequired(c, payErr.Error())
	case errors.Is(err, events.ErrUnknownEvent), errors.Is(err, upstream.ErrNotFound):
		response.NotFound(c, "event not found")
	case errors.Is(err, ErrEventNotOpen), errors.Is(err, ErrPaymentInfoRequired), errors.Is(err, ErrMethodNotAccepted):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrAlreadyRegistered):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("registration failed", zap.Int64("event_id", eventID), zap.Error(err))
		response.BadGateway(c, "failed to register")
	}
}
