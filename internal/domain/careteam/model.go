package careteam

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/domain/identity"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyAssigned = errors.New("patient is already assigned to this medical professional")
	ErrNotAssigned     = errors.New("patient not found or not associated with this medical professional")
)

// Assignment maps to the care_assignment table: an explicit link between a
// medical professional and a patient.
type Assignment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ProviderID uuid.UUID `db:"medical_professional_id" json:"medical_professional_id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Tier names the strategy that produced a candidate list.
type Tier string

const (
	TierAssigned Tier = "assigned"
	TierHistory  Tier = "appointment_history"
	TierAll      Tier = "all"
)

// FallbackHelpText accompanies the all-patients tier.
const FallbackHelpText = "No patients are associated with you. Showing all patients."

// Candidates is the patient picker offered to a medical professional.
type Candidates struct {
	Patients []*identity.Patient `json:"patients"`
	Tier     Tier                `json:"tier"`
	HelpText string              `json:"help_text,omitempty"`
}

// Contains reports whether patientID is one of the candidates.
func (c *Candidates) Contains(patientID uuid.UUID) bool {
	for _, p := range c.Patients {
		if p.ID == patientID {
			return true
		}
	}
	return false
}
