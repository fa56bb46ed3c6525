package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/platform/auth"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrProfileExists      = errors.New("identity already has a role profile")
	ErrUsernameTaken      = errors.New("a user with that username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrWrongRole means the credentials are valid but belong to another role.
	ErrWrongRole = errors.New("identity does not hold the requested role")
)

// DateLayout is the form layout of date_of_birth.
const DateLayout = "2006-01-02"

// Identity maps to the identity table: a login account. Role stays empty
// until a profile is provisioned.
type Identity struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email"`
	Role         auth.Role `db:"role" json:"role,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (i *Identity) FullName() string {
	return fullName(i.FirstName, i.LastName, i.Username)
}

// Person is the identity data joined onto every profile read.
type Person struct {
	Username  string `db:"username" json:"username"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Email     string `db:"email" json:"email"`
}

func (p Person) FullName() string {
	return fullName(p.FirstName, p.LastName, p.Username)
}

func fullName(first, last, fallback string) string {
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return fallback
	}
	return name
}

// Patient maps to the patient table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	IdentityID  uuid.UUID  `db:"identity_id" json:"identity_id"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Address     string     `db:"address" json:"address"`
	Phone       string     `db:"phone" json:"phone_number"`
	Person
}

// MedicalProfessional maps to the medical_professional table.
type MedicalProfessional struct {
	ID             uuid.UUID `db:"id" json:"id"`
	IdentityID     uuid.UUID `db:"identity_id" json:"identity_id"`
	Specialization string    `db:"specialization" json:"specialization"`
	Phone          string    `db:"phone" json:"phone_number"`
	Person
}

// FacilityAdministrator maps to the facility_administrator table.
type FacilityAdministrator struct {
	ID           uuid.UUID `db:"id" json:"id"`
	IdentityID   uuid.UUID `db:"identity_id" json:"identity_id"`
	FacilityName string    `db:"facility_name" json:"facility_name"`
	Phone        string    `db:"phone" json:"phone_number"`
	Person
}

// ProfileAttributes are the role-specific fields copied onto a new profile.
// Only the fields of the provisioned role are used.
type ProfileAttributes struct {
	DateOfBirth    *time.Time
	Address        string
	Phone          string
	Specialization string
	FacilityName   string
}

// RoleProfile is the one profile an identity holds. Exactly one of the
// pointers matching Role is set.
type RoleProfile struct {
	Role          auth.Role              `json:"role"`
	Patient       *Patient               `json:"patient,omitempty"`
	Provider      *MedicalProfessional   `json:"medical_professional,omitempty"`
	Administrator *FacilityAdministrator `json:"administrator,omitempty"`
}

// ID returns the id of the populated profile row.
func (p *RoleProfile) ID() uuid.UUID {
	switch {
	case p == nil:
		return uuid.Nil
	case p.Patient != nil:
		return p.Patient.ID
	case p.Provider != nil:
		return p.Provider.ID
	case p.Administrator != nil:
		return p.Administrator.ID
	}
	return uuid.Nil
}

// SignupForm mirrors the account creation form shared by all roles.
type SignupForm struct {
	Username       string `form:"username"`
	Email          string `form:"email"`
	FirstName      string `form:"first_name"`
	LastName       string `form:"last_name"`
	Password1      string `form:"password1"`
	Password2      string `form:"password2"`
	DateOfBirth    string `form:"date_of_birth"`
	Address        string `form:"address"`
	Phone          string `form:"phone_number"`
	Specialization string `form:"specialization"`
	FacilityName   string `form:"facility_name"`
}

// PersonForm updates identity names and email together with profile fields.
// It backs both the patient billing page and the administrator edit pages.
type PersonForm struct {
	FirstName      string `form:"first_name"`
	LastName       string `form:"last_name"`
	Email          string `form:"email"`
	DateOfBirth    string `form:"date_of_birth"`
	Address        string `form:"address"`
	Phone          string `form:"phone_number"`
	Specialization string `form:"specialization"`
}
