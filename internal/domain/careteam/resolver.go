package careteam

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/domain/identity"
)

// PatientSource loads one tier of picker candidates for a provider.
type PatientSource func(ctx context.Context, providerID uuid.UUID) ([]*identity.Patient, error)

type Strategy struct {
	Tier   Tier
	Source PatientSource
}

// DefaultStrategies is the picker order: explicit assignments, then
// patients from the provider's appointment history, then every patient.
func DefaultStrategies(repo AssignmentRepository) []Strategy {
	return []Strategy{
		{Tier: TierAssigned, Source: repo.AssignedPatients},
		{Tier: TierHistory, Source: repo.PatientsSeenBy},
		{Tier: TierAll, Source: func(ctx context.Context, _ uuid.UUID) ([]*identity.Patient, error) {
			return repo.AllPatients(ctx)
		}},
	}
}

// Resolver runs the strategies in order and stops at the first non-empty
// tier.
type Resolver struct {
	strategies []Strategy
}

func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

func (r *Resolver) Candidates(ctx context.Context, providerID uuid.UUID) (*Candidates, error) {
	result := &Candidates{Tier: TierAll}
	for _, s := range r.strategies {
		patients, err := s.Source(ctx, providerID)
		if err != nil {
			return nil, fmt.Errorf("load %s candidates: %w", s.Tier, err)
		}
		result.Tier = s.Tier
		if len(patients) > 0 {
			result.Patients = patients
			break
		}
	}
	if result.Tier == TierAll {
		result.HelpText = FallbackHelpText
	}
	if result.Patients == nil {
		result.Patients = []*identity.Patient{}
	}
	return result, nil
}
