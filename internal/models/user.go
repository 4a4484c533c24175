package models

import (
	"strings"
	"time"
)

// Role is the gateway role used for route gating.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleStudent     Role = "student"
)

// RoleFromBackend maps the upstream rol. Unknown roles are students.
func RoleFromBackend(rol string) Role {
	switch strings.ToUpper(strings.TrimSpace(rol)) {
	case "ADMIN":
		return RoleAdmin
	case "COORDINATOR", "COORDINADOR":
		return RoleCoordinator
	}
	return RoleStudent
}

// User is the signed-in identity held by a session.
type User struct {
	ID               int64  `json:"id"`
	Email            string `json:"email"`
	Nombre           string `json:"nombre"`
	Apellidos        string `json:"apellidos"`
	Role             Role   `json:"role"`
	Activo           bool   `json:"activo"`
	CodigoEstudiante string `json:"codigo_estudiante,omitempty"`
}

// FullName joins first and last names.
func (u User) FullName() string {
	return strings.TrimSpace(u.Nombre + " " + u.Apellidos)
}

// AuthResponse is the upstream /auth/login and /auth/register response.
type AuthResponse struct {
	Token            string `json:"token"`
	ExpiresIn        int64  `json:"expiresIn"`
	UserID           int64  `json:"userId"`
	Email            string `json:"email"`
	Nombre           string `json:"nombre"`
	Apellidos        string `json:"apellidos"`
	Rol              string `json:"rol"`
	CodigoEstudiante string `json:"codigoEstudiante"`
}

// ToUser maps the upstream auth response to a User.
func (a AuthResponse) ToUser() User {
	return User{
		ID:               a.UserID,
		Email:            a.Email,
		Nombre:           a.Nombre,
		Apellidos:        a.Apellidos,
		Role:             RoleFromBackend(a.Rol),
		Activo:           true,
		CodigoEstudiante: a.CodigoEstudiante,
	}
}

// Session is a persisted sign-in: the user blob plus the upstream bearer token.
type Session struct {
	ID            string    `json:"id"`
	User          User      `json:"user"`
	UpstreamToken string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Estudiante is a student directory record (/estudiantes-upeu).
type Estudiante struct {
	CodigoEstudiante   string `json:"codigoEstudiante"`
	Nombre             string `json:"nombre"`
	Apellidos          string `json:"apellidos"`
	Email              string `json:"email"`
	Facultad           string `json:"facultad"`
	EscuelaProfesional string `json:"escuelaProfesional"`
	Semestre           string `json:"semestre"`
	Telefono           string `json:"telefono,omitempty"`
	Estado             *bool  `json:"estado,omitempty"`
}

// PagosConfig is the upstream payment instructions (/pagos/config).
type PagosConfig struct {
	YapeNumber string `json:"yapeNumber"`
}
