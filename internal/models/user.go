package models

import (
	"strings"
	"time"
)

// Role is a dashboard user role.
type Role string

const (
	RoleAdmin    Role = "administrador"
	RoleOperator Role = "operador"
	RoleSupport  Role = "soporte"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleOperator || r == RoleSupport
}

// User is a dashboard account.
type User struct {
	ID           string      `json:"_id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Name         string      `json:"nombre"`
	Role         Role        `json:"rol"`
	OperatorType Responsable `json:"tipoOperador,omitempty"`
	Active       bool        `json:"activo"`
	RefreshToken string      `json:"-"`
	LastAccess   *time.Time  `json:"ultimoAcceso,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
