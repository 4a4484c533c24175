package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/upeu-eventos/gateway/internal/models"
)

// InscripcionFilter narrows GET /inscripciones. Zero fields are omitted.
type InscripcionFilter struct {
	EventoID  int64
	UsuarioID int64
}

func (f InscripcionFilter) values() url.Values {
	v := make(url.Values)
	if f.EventoID != 0 {
		v.Set("eventoId", fmt.Sprint(f.EventoID))
	}
	if f.UsuarioID != 0 {
		v.Set("usuarioId", fmt.Sprint(f.UsuarioID))
	}
	return v
}

// ListInscripciones handles GET /inscripciones with optional filters.
func (c *Client) ListInscripciones(ctx context.Context, f InscripcionFilter) ([]models.Inscripcion, error) {
	var out []models.Inscripcion
	if err := c.do(ctx, http.MethodGet, "/inscripciones", f.values(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateInscripcion handles POST /inscripciones.
func (c *Client) CreateInscripcion(ctx context.Context, in models.Inscripcion) (*models.Inscripcion, error) {
	var out models.Inscripcion
	if err := c.do(ctx, http.MethodPost, "/inscripciones", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type bulkRequest struct {
	EventoID int64    `json:"eventoId"`
	Codigos  []string `json:"codigos"`
}

// BulkInscribir handles POST /inscripciones/bulk.
func (c *Client) BulkInscribir(ctx context.Context, eventID int64, codes []string) ([]models.Inscripcion, error) {
	var out []models.Inscripcion
	if err := c.do(ctx, http.MethodPost, "/inscripciones/bulk", nil, bulkRequest{EventoID: eventID, Codigos: codes}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateInscripcionEstado handles PATCH /inscripciones/:id with {estado}.
func (c *Client) UpdateInscripcionEstado(ctx context.Context, id int64, estado string) (*models.Inscripcion, error) {
	var out models.Inscripcion
	body := map[string]string{"estado": estado}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/inscripciones/%d", id), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type validateRequest struct {
	Codigos []string `json:"codigos"`
}

// ValidarCodigos handles POST /inscripciones/validar.
func (c *Client) ValidarCodigos(ctx context.Context, codes []string) (*models.ValidationResponse, error) {
	var out models.ValidationResponse
	if err := c.do(ctx, http.MethodPost, "/inscripciones/validar", nil, validateRequest{Codigos: codes}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
