package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/upeu-eventos/gateway/internal/upstream"
	"github.com/upeu-eventos/gateway/pkg/response"
)

// Context keys set by the JWT middleware and read by handlers.
const (
	ContextUserID    = "user_id"
	ContextUserRole  = "user_role"
	ContextUserEmail = "user_email"
	ContextSession   = "session"
	ContextUser      = "user"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Nombre           string `json:"nombre" binding:"required"`
	Apellidos        string `json:"apellidos" binding:"required"`
	CodigoEstudiante string `json:"codigo_estudiante"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=6"`
	DNI              string `json:"dni"`
	Telefono         string `json:"telefono"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	mgr    *Manager
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(mgr *Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{mgr: mgr, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.mgr.Register(c.Request.Context(), upstream.RegisterRequest{
		Nombre:           req.Nombre,
		Apellidos:        req.Apellidos,
		CodigoEstudiante: req.CodigoEstudiante,
		Email:            req.Email,
		Password:         req.Password,
		DNI:              req.DNI,
		Telefono:         req.Telefono,
	})
	if err != nil {
		var ue *upstream.Error
		if errors.As(err, &ue) && ue.StatusCode < 500 {
			response.BadRequest(c, ue.Message)
			return
		}
		h.logger.Error("register failed", zap.Error(err))
		response.BadGateway(c, "registration service unavailable")
		return
	}
	response.Created(c, res)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.mgr.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		response.BadGateway(c, "login service unavailable")
		return
	}
	response.OK(c, res)
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	sid := c.GetString(ContextSession)
	if err := h.mgr.Logout(c.Request.Context(), sid); err != nil {
		h.logger.Error("logout failed", zap.String("session_id", sid), zap.Error(err))
		response.Internal(c, "failed to sign out")
		return
	}
	response.NoContent(c)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	s, err := h.mgr.Current(c.Request.Context(), c.GetString(ContextSession))
	if err != nil {
		response.Unauthorized(c, "session expired")
		return
	}
	response.OK(c, gin.H{"user": s.User, "expires_at": s.ExpiresAt})
}
