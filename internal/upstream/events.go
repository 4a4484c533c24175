package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/upeu-eventos/gateway/internal/models"
)

// ListEventos handles GET /eventos.
func (c *Client) ListEventos(ctx context.Context) ([]models.Evento, error) {
	var out []models.Evento
	if err := c.do(ctx, http.MethodGet, "/eventos", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateEvento handles POST /eventos.
func (c *Client) CreateEvento(ctx context.Context, e models.Evento) (*models.Evento, error) {
	var out models.Evento
	if err := c.do(ctx, http.MethodPost, "/eventos", nil, e, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateEvento handles PUT /eventos/:id.
func (c *Client) UpdateEvento(ctx context.Context, id int64, e models.Evento) (*models.Evento, error) {
	var out models.Evento
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/eventos/%d", id), nil, e, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteEvento handles DELETE /eventos/:id.
func (c *Client) DeleteEvento(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/eventos/%d", id), nil, nil, nil)
}

// ListSessions handles GET /fechaevento?eventoId=.
func (c *Client) ListSessions(ctx context.Context, eventID int64) ([]models.FechaEvento, error) {
	var out []models.FechaEvento
	if err := c.do(ctx, http.MethodGet, "/fechaevento", idQuery("eventoId", eventID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession handles POST /fechaevento.
func (c *Client) CreateSession(ctx context.Context, f models.FechaEvento) (*models.FechaEvento, error) {
	var out models.FechaEvento
	if err := c.do(ctx, http.MethodPost, "/fechaevento", nil, f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession handles DELETE /fechaevento/:id.
func (c *Client) DeleteSession(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/fechaevento/%d", id), nil, nil, nil)
}

// ListPaymentMethods handles GET /metodo-pagos-eventos?eventoId=.
func (c *Client) ListPaymentMethods(ctx context.Context, eventID int64) ([]models.MetodoPagoEvento, error) {
	var out []models.MetodoPagoEvento
	if err := c.do(ctx, http.MethodGet, "/metodo-pagos-eventos", idQuery("eventoId", eventID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePaymentMethod handles POST /metodo-pagos-eventos.
func (c *Client) CreatePaymentMethod(ctx context.Context, m models.MetodoPagoEvento) (*models.MetodoPagoEvento, error) {
	var out models.MetodoPagoEvento
	if err := c.do(ctx, http.MethodPost, "/metodo-pagos-eventos", nil, m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PagosConfig handles GET /pagos/config.
func (c *Client) PagosConfig(ctx context.Context) (*models.PagosConfig, error) {
	var out models.PagosConfig
	if err := c.do(ctx, http.MethodGet, "/pagos/config", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
