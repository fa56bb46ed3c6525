package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	// Create and Update return a *ConflictError without an initiator when a
	// slot uniqueness constraint rejects the row.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]*Appointment, int, error)
	// ProviderBusyAt and PatientBusyAt report whether an appointment other
	// than exclude is booked at exactly at.
	ProviderBusyAt(ctx context.Context, providerID uuid.UUID, at time.Time, exclude uuid.UUID) (bool, error)
	PatientBusyAt(ctx context.Context, patientID uuid.UUID, at time.Time, exclude uuid.UUID) (bool, error)
}

// TxRunner runs fn atomically. *db.TxManager implements it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
