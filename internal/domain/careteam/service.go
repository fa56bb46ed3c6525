package careteam

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/domain/identity"
)

type Service struct {
	assignments AssignmentRepository
	patients    identity.PatientRepository
	resolver    *Resolver
}

func NewService(assignments AssignmentRepository, patients identity.PatientRepository) *Service {
	return &Service{
		assignments: assignments,
		patients:    patients,
		resolver:    NewResolver(DefaultStrategies(assignments)...),
	}
}

// PatientsFor returns the patients explicitly assigned to the provider.
func (s *Service) PatientsFor(ctx context.Context, providerID uuid.UUID) ([]*identity.Patient, error) {
	return s.assignments.AssignedPatients(ctx, providerID)
}

// Candidates is the report-authoring patient picker.
func (s *Service) Candidates(ctx context.Context, providerID uuid.UUID) (*Candidates, error) {
	return s.resolver.Candidates(ctx, providerID)
}

// AssignablePatients lists the patients not yet assigned to the provider.
func (s *Service) AssignablePatients(ctx context.Context, providerID uuid.UUID) ([]*identity.Patient, error) {
	return s.assignments.UnassignedPatients(ctx, providerID)
}

// Assign links a patient to the provider and returns the patient.
func (s *Service) Assign(ctx context.Context, providerID, patientID uuid.UUID) (*identity.Patient, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.assignments.Create(ctx, &Assignment{ProviderID: providerID, PatientID: patientID}); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Unassign(ctx context.Context, providerID, patientID uuid.UUID) error {
	return s.assignments.Delete(ctx, providerID, patientID)
}

// AssignedPatient returns the patient only when it is assigned to the
// provider; otherwise ErrNotAssigned.
func (s *Service) AssignedPatient(ctx context.Context, providerID, patientID uuid.UUID) (*identity.Patient, error) {
	ok, err := s.assignments.Exists(ctx, providerID, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAssigned
	}
	p, err := s.patients.GetByID(ctx, patientID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, ErrNotAssigned
	}
	return p, err
}
