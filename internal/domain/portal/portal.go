// Package portal serves the landing page, the per-role dashboards and the
// patient self-service pages that draw on several domains at once.
package portal

import (
	"context"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/domain/clinical"
	"github.com/medcore/hospital/internal/domain/identity"
	"github.com/medcore/hospital/internal/domain/scheduling"
	"github.com/medcore/hospital/pkg/formerr"
)

// Appointments is the part of *scheduling.Service the dashboards read.
type Appointments interface {
	UpcomingForPatient(ctx context.Context, patientID uuid.UUID) ([]*scheduling.Appointment, error)
	UpcomingForProvider(ctx context.Context, providerID uuid.UUID) ([]*scheduling.Appointment, error)
	Next(ctx context.Context, n int) ([]*scheduling.Appointment, error)
}

// Records is the part of *clinical.Service the dashboards read.
type Records interface {
	PrescriptionsForPatient(ctx context.Context, patientID uuid.UUID) ([]*clinical.Prescription, error)
	ReportsForPatient(ctx context.Context, patientID uuid.UUID) ([]*clinical.Report, error)
	LatestReports(ctx context.Context, n int) ([]*clinical.Report, error)
}

// People is the part of *identity.Service the portal uses.
type People interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	UpdatePatient(ctx context.Context, id uuid.UUID, f identity.PersonForm, billing bool) (*identity.Patient, error)
	CountPatients(ctx context.Context) (int, error)
	CountProviders(ctx context.Context) (int, error)
}

// CareTeam resolves a provider's assigned patient. *careteam.Service
// implements it.
type CareTeam interface {
	AssignedPatient(ctx context.Context, providerID, patientID uuid.UUID) (*identity.Patient, error)
}

// AdminDashboard is the facility overview.
type AdminDashboard struct {
	TotalPatients        int                       `json:"total_patients"`
	TotalDoctors         int                       `json:"total_doctors"`
	UpcomingAppointments []*scheduling.Appointment `json:"upcoming_appointments"`
	Reports              []*clinical.Report        `json:"reports"`
}

// dashboardListSize bounds the admin dashboard lists.
const dashboardListSize = 5

func fieldRequired(field string) *formerr.Errors {
	return formerr.Field(field, "This field is required.")
}
