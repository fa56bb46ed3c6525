package scheduling

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medcore/hospital/pkg/formerr"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrConflict matches every *ConflictError.
	ErrConflict = errors.New("appointment conflict")
)

// DateTimeLayout is the datetime-local layout used by appointment forms.
const DateTimeLayout = "2006-01-02T15:04"

const msgNotInFuture = "The appointment date must be in the future."

// Appointment maps to the appointment table. The name fields are filled on
// list reads for display.
type Appointment struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	ProviderID   uuid.UUID `db:"medical_professional_id" json:"medical_professional_id"`
	ScheduledAt  time.Time `db:"scheduled_at" json:"appointment_date"`
	Reason       string    `db:"reason" json:"reason"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
	PatientName  string    `json:"patient_name,omitempty"`
	ProviderName string    `json:"medical_professional_name,omitempty"`
}

// Proposal is a requested booking, either new or a change to an existing
// appointment.
type Proposal struct {
	PatientID   uuid.UUID
	ProviderID  uuid.UUID
	ScheduledAt time.Time
	Reason      string
}

// Initiator is the role booking the appointment. It selects the wording of
// conflict messages.
type Initiator string

const (
	InitiatorPatient  Initiator = "patient"
	InitiatorProvider Initiator = "medical"
	InitiatorAdmin    Initiator = "admin"
)

// Busy names the party that already holds the requested timestamp.
type Busy string

const (
	BusyProvider Busy = "provider"
	BusyPatient  Busy = "patient"
)

var conflictMessages = map[Initiator]map[Busy]string{
	InitiatorPatient: {
		BusyProvider: "This doctor is not available at that time.",
		BusyPatient:  "You already have an appointment at that time.",
	},
	InitiatorProvider: {
		BusyProvider: "You already have an appointment at that time.",
		BusyPatient:  "This patient already has an appointment at that time.",
	},
	InitiatorAdmin: {
		BusyProvider: "This doctor is not available at that time.",
		BusyPatient:  "This patient already has an appointment at that time.",
	},
}

// ConflictError reports a double booking at an exact timestamp.
type ConflictError struct {
	Busy      Busy
	Initiator Initiator
	At        time.Time
}

func (e *ConflictError) Error() string { return e.Message() }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Message is the form-level text shown to the initiator.
func (e *ConflictError) Message() string {
	if msg, ok := conflictMessages[e.Initiator][e.Busy]; ok {
		return msg
	}
	return conflictMessages[InitiatorAdmin][e.Busy]
}

func (e *ConflictError) FormErrors() *formerr.Errors {
	return formerr.Form(e.Message())
}

// ListFilter narrows an appointment listing. Nil fields do not filter.
type ListFilter struct {
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
	// From keeps appointments at or after the instant.
	From       *time.Time
	Descending bool
	Limit      int
	Offset     int
}

// AppointmentForm is the union of the patient, provider and administrator
// booking forms. Each initiator ignores the party it supplies itself.
type AppointmentForm struct {
	Patient             string `form:"patient"`
	MedicalProfessional string `form:"medical_professional"`
	AppointmentDate     string `form:"appointment_date"`
	Reason              string `form:"reason"`
}

// FormOf prefills an edit form from an existing appointment.
func FormOf(a *Appointment, loc *time.Location) AppointmentForm {
	return AppointmentForm{
		Patient:             a.PatientID.String(),
		MedicalProfessional: a.ProviderID.String(),
		AppointmentDate:     a.ScheduledAt.In(loc).Format(DateTimeLayout),
		Reason:              a.Reason,
	}
}
