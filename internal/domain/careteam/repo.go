package careteam

import (
	"context"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/domain/identity"
)

type AssignmentRepository interface {
	// Create returns ErrAlreadyAssigned for a duplicate pair and ErrNotFound
	// when either side does not exist.
	Create(ctx context.Context, a *Assignment) error
	Delete(ctx context.Context, providerID, patientID uuid.UUID) error
	Exists(ctx context.Context, providerID, patientID uuid.UUID) (bool, error)
	AssignedPatients(ctx context.Context, providerID uuid.UUID) ([]*identity.Patient, error)
	UnassignedPatients(ctx context.Context, providerID uuid.UUID) ([]*identity.Patient, error)
	// PatientsSeenBy returns the distinct patients with an appointment
	// booked with the provider.
	PatientsSeenBy(ctx context.Context, providerID uuid.UUID) ([]*identity.Patient, error)
	AllPatients(ctx context.Context) ([]*identity.Patient, error)
}
