package auth

import (
	"errors"
	"strings"
)

// Role is the single role an identity holds once a profile is provisioned.
type Role string

const (
	RoleNone    Role = ""
	RolePatient Role = "patient"
	RoleMedical Role = "medical"
	RoleAdmin   Role = "admin"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole accepts the canonical names plus the aliases used by signup
// forms and the provisioning CLI.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "patient":
		return RolePatient, nil
	case "medical", "provider", "doctor":
		return RoleMedical, nil
	case "admin", "administrator":
		return RoleAdmin, nil
	}
	return RoleNone, ErrInvalidRole
}

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleMedical || r == RoleAdmin
}

// Audience is the plural used in login page messages.
func (r Role) Audience() string {
	switch r {
	case RolePatient:
		return "Patients"
	case RoleMedical:
		return "Medical Professionals"
	case RoleAdmin:
		return "Administrators"
	}
	return "Users"
}

// DashboardPath is the role's own dashboard.
func (r Role) DashboardPath() string {
	switch r {
	case RolePatient:
		return "/dashboard/patient/"
	case RoleMedical:
		return "/dashboard/medical/"
	case RoleAdmin:
		return "/dashboard/admin/"
	}
	return "/"
}

// LoginPath is the role-specific login page.
func (r Role) LoginPath() string {
	if r.Valid() {
		return "/login/" + string(r) + "/"
	}
	return "/login/"
}
