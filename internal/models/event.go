package models

import (
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an event as shown to users.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// EventType is the normalized category of an event.
type EventType string

const (
	TypeAcademic       EventType = "academic"
	TypeCultural       EventType = "cultural"
	TypeSports         EventType = "sports"
	TypeAdministrative EventType = "administrative"
	TypeSocial         EventType = "social"
)

// Evento is the upstream event resource (GET/POST/PUT /eventos).
type Evento struct {
	ID          int64   `json:"id,omitempty"`
	Nombre      string  `json:"nombre"`
	Descripcion string  `json:"descripcion"`
	Tipo        string  `json:"tipo"`
	Categoria   string  `json:"categoria,omitempty"`
	Ubicacion   string  `json:"ubicacion"`
	Capacidad   int     `json:"capacidad"`
	EsPago      bool    `json:"esPago"`
	Precio      float64 `json:"precio"`
	ImagenURL   string  `json:"imagenUrl,omitempty"`
	Estado      bool    `json:"estado"`
	CreadoPorID int64   `json:"creadoPorId,omitempty"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

// FechaEvento is one upstream session of an event (/fechaevento).
type FechaEvento struct {
	ID          int64  `json:"id,omitempty"`
	EventoID    int64  `json:"eventoId"`
	FechaInicio string `json:"fechaInicio"`
	FechaFin    string `json:"fechaFin"`
	Descripcion string `json:"descripcion,omitempty"`
}

// MetodoPagoEvento is an event-scoped payment channel (/metodo-pagos-eventos).
type MetodoPagoEvento struct {
	ID           int64  `json:"id,omitempty"`
	NombreMetodo string `json:"nombreMetodo"`
	Descripcion  string `json:"descripcion"`
	Activo       bool   `json:"activo"`
	EventoID     int64  `json:"eventoId"`
}

// EventSession is one scheduled occurrence of an event.
type EventSession struct {
	ID          int64     `json:"id,omitempty"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Description string    `json:"description"`
}

// AspectResult records how one per-event aspect (count, sessions, methods) was populated.
type AspectResult struct {
	Loaded    bool   `json:"loaded"`
	Defaulted bool   `json:"defaulted"`
	Err       string `json:"error,omitempty"`
}

// EventView is an event aggregated with its sessions, payment methods and registration count.
type EventView struct {
	ID                     int64          `json:"id"`
	Title                  string         `json:"title"`
	Description            string         `json:"description"`
	Type                   EventType      `json:"type"`
	Status                 EventStatus    `json:"status"`
	Location               string         `json:"location"`
	Capacity               int            `json:"capacity"`
	RegisteredCount        int            `json:"registered_count"`
	IsFree                 bool           `json:"is_free"`
	Price                  float64        `json:"price"`
	ImageURL               string         `json:"image_url,omitempty"`
	CreatedBy              int64          `json:"created_by,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	StartDate              time.Time      `json:"start_date"`
	EndDate                time.Time      `json:"end_date"`
	Sessions               []EventSession `json:"sessions"`
	AcceptedPaymentMethods []string       `json:"accepted_payment_methods"`

	CountAspect   AspectResult `json:"count_aspect"`
	SessionAspect AspectResult `json:"session_aspect"`
	MethodAspect  AspectResult `json:"method_aspect"`
}

// OverCapacity reports whether the known registrations reached capacity. Advisory only.
func (v EventView) OverCapacity() bool {
	return v.Capacity > 0 && v.RegisteredCount >= v.Capacity
}

// EventViewFromEvento converts an upstream event into a view with no aspects loaded yet.
// Dates fall back to the creation timestamp until sessions arrive.
func EventViewFromEvento(e Evento) EventView {
	created := ParseTime(e.CreatedAt)
	status := EventDraft
	if e.Estado {
		status = EventPublished
	}
	return EventView{
		ID:                     e.ID,
		Title:                  e.Nombre,
		Description:            e.Descripcion,
		Type:                   TypeFromBackend(e.Tipo),
		Status:                 status,
		Location:               e.Ubicacion,
		Capacity:               e.Capacidad,
		IsFree:                 !e.EsPago,
		Price:                  e.Precio,
		ImageURL:               e.ImagenURL,
		CreatedBy:              e.CreadoPorID,
		CreatedAt:              created,
		StartDate:              created,
		EndDate:                created,
		Sessions:               []EventSession{},
		AcceptedPaymentMethods: []string{},
	}
}

// ApplySessions sets the sessions and recomputes the effective schedule:
// earliest session start and latest session end override the event dates.
func (v *EventView) ApplySessions(sessions []EventSession) {
	v.Sessions = sessions
	var start, end time.Time
	for _, s := range sessions {
		if !s.StartDate.IsZero() && (start.IsZero() || s.StartDate.Before(start)) {
			start = s.StartDate
		}
		if !s.EndDate.IsZero() && s.EndDate.After(end) {
			end = s.EndDate
		}
	}
	if !start.IsZero() {
		v.StartDate = start
	}
	if !end.IsZero() {
		v.EndDate = end
	}
	if v.EndDate.Before(v.StartDate) {
		v.EndDate = v.StartDate
	}
}

// TypeFromBackend maps the free-form upstream tipo to an EventType.
func TypeFromBackend(tipo string) EventType {
	t := strings.ToLower(tipo)
	switch {
	case strings.Contains(t, "aca"):
		return TypeAcademic
	case strings.Contains(t, "cult"):
		return TypeCultural
	case strings.Contains(t, "dep"), strings.Contains(t, "sport"):
		return TypeSports
	case strings.Contains(t, "adm"):
		return TypeAdministrative
	}
	return TypeSocial
}

// Backend returns the upstream tipo for an EventType.
func (t EventType) Backend() string {
	switch t {
	case TypeAcademic:
		return "ACADEMICO"
	case TypeCultural:
		return "CULTURAL"
	case TypeSports:
		return "DEPORTIVO"
	case TypeAdministrative:
		return "ADMINISTRATIVO"
	}
	return "SOCIAL"
}

// ParseTime accepts the timestamp layouts the upstream emits. Zero time on failure.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
