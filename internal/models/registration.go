package models

import (
	"strings"
	"time"
)

// RegistrationStatus is the attendance lifecycle of a registration.
type RegistrationStatus string

const (
	StatusPending   RegistrationStatus = "pending"
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusAttended  RegistrationStatus = "attended"
)

// Upstream estado values.
const (
	EstadoConfirmado = "CONFIRMADO"
	EstadoAsistio    = "ASISTIO"
)

// StatusFromEstado maps the upstream estado string.
func StatusFromEstado(estado string) RegistrationStatus {
	switch strings.ToUpper(strings.TrimSpace(estado)) {
	case EstadoAsistio:
		return StatusAttended
	case EstadoConfirmado:
		return StatusConfirmed
	}
	return StatusPending
}

// Inscripcion is the upstream registration record (/inscripciones).
type Inscripcion struct {
	ID                  int64  `json:"id,omitempty"`
	EventoID            int64  `json:"eventoId,omitempty"`
	UsuarioID           int64  `json:"usuarioId,omitempty"`
	CodigoEstudiante    string `json:"codigoEstudiante,omitempty"`
	CodigoAlumno        string `json:"codigoAlumno,omitempty"`
	NombreEstudiante    string `json:"nombreEstudiante,omitempty"`
	ApellidosEstudiante string `json:"apellidosEstudiante,omitempty"`
	EmailEstudiante     string `json:"emailEstudiante,omitempty"`
	Facultad            string `json:"facultad,omitempty"`
	EscuelaProfesional  string `json:"escuelaProfesional,omitempty"`
	Semestre            string `json:"semestre,omitempty"`
	Estado              string `json:"estado,omitempty"`
	MetodoPago          string `json:"metodoPago,omitempty"`
	NumeroOperacion     string `json:"numeroOperacion,omitempty"`
	EsInscripcionMasiva string `json:"esInscripcionMasiva,omitempty"`
	FechaInscripcion    string `json:"fechaInscripcion,omitempty"`
	FechaConfirmacion   string `json:"fechaConfirmacion,omitempty"`
}

// Code returns whichever student code field the upstream filled in.
func (i Inscripcion) Code() string {
	if i.CodigoEstudiante != "" {
		return i.CodigoEstudiante
	}
	return i.CodigoAlumno
}

// Registration is the gateway's copy of one upstream registration.
type Registration struct {
	ID           int64              `json:"id"`
	EventID      int64              `json:"event_id"`
	StudentCode  string             `json:"student_code"`
	Name         string             `json:"name"`
	Email        string             `json:"email,omitempty"`
	Status       RegistrationStatus `json:"status"`
	RegisteredAt time.Time          `json:"registered_at"`
	AttendedAt   *time.Time         `json:"attended_at,omitempty"`
}

// RegistrationFromInscripcion converts an upstream record.
func RegistrationFromInscripcion(i Inscripcion) Registration {
	name := strings.TrimSpace(i.NombreEstudiante + " " + i.ApellidosEstudiante)
	r := Registration{
		ID:           i.ID,
		EventID:      i.EventoID,
		StudentCode:  i.Code(),
		Name:         name,
		Email:        i.EmailEstudiante,
		Status:       StatusFromEstado(i.Estado),
		RegisteredAt: ParseTime(i.FechaInscripcion),
	}
	if r.Status == StatusAttended {
		if t := ParseTime(i.FechaConfirmacion); !t.IsZero() {
			r.AttendedAt = &t
		}
	}
	return r
}

// PaymentInfo is the method + reference recorded for paid registrations.
type PaymentInfo struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

// Complete reports whether both fields are present.
func (p *PaymentInfo) Complete() bool {
	return p != nil && strings.TrimSpace(p.Method) != "" && strings.TrimSpace(p.Reference) != ""
}
