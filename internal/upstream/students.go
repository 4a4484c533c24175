package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/upeu-eventos/gateway/internal/models"
)

// ListEstudiantes handles GET /estudiantes-upeu.
func (c *Client) ListEstudiantes(ctx context.Context) ([]models.Estudiante, error) {
	var out []models.Estudiante
	if err := c.do(ctx, http.MethodGet, "/estudiantes-upeu", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEstudiante handles GET /estudiantes-upeu/:codigo. A missing student is ErrNotFound.
func (c *Client) GetEstudiante(ctx context.Context, code string) (*models.Estudiante, error) {
	var out models.Estudiante
	if err := c.do(ctx, http.MethodGet, "/estudiantes-upeu/"+url.PathEscape(code), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEstudianteByEmail handles GET /estudiantes-upeu/by-email/:email.
func (c *Client) GetEstudianteByEmail(ctx context.Context, email string) (*models.Estudiante, error) {
	var out models.Estudiante
	if err := c.do(ctx, http.MethodGet, "/estudiantes-upeu/by-email/"+url.PathEscape(email), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
