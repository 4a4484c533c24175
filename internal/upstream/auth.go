package upstream

import (
	"context"
	"net/http"

	"github.com/upeu-eventos/gateway/internal/models"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Nombre           string `json:"nombre"`
	Apellidos        string `json:"apellidos"`
	CodigoEstudiante string `json:"codigoEstudiante"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	DNI              string `json:"dni,omitempty"`
	Telefono         string `json:"telefono,omitempty"`
	Rol              string `json:"rol,omitempty"`
}

// Login handles POST /auth/login.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register handles POST /auth/register.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
