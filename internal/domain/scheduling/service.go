package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/domain/identity"
	"github.com/medcore/hospital/pkg/formerr"
)

const (
	msgRequired      = "This field is required."
	msgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."
	msgInvalidDate   = "Enter a valid date/time."
)

// Participants resolves the two parties of a booking. *identity.Service
// implements it.
type Participants interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*identity.MedicalProfessional, error)
}

// ConflictRecorder counts rejected double bookings.
type ConflictRecorder interface {
	BookingConflict(initiator, busy string)
}

type Option func(*Service)

// WithClock replaces time.Now for the future-date check.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithConflictRecorder(r ConflictRecorder) Option {
	return func(s *Service) { s.conflicts = r }
}

// WithLocation sets the zone form datetimes are read in. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// Service books appointments. A proposal is accepted only when its time is
// strictly in the future and neither party already holds that exact
// timestamp. The checks and the write share one transaction, and the
// slot uniqueness constraints reject whatever a concurrent writer slips in.
type Service struct {
	tx           TxRunner
	repo         AppointmentRepository
	participants Participants
	now          func() time.Time
	loc          *time.Location
	conflicts    ConflictRecorder
}

func NewService(tx TxRunner, repo AppointmentRepository, participants Participants, opts ...Option) *Service {
	s := &Service{tx: tx, repo: repo, participants: participants, now: time.Now, loc: time.UTC}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

// normalize drops precision the database would drop, so equal timestamps
// compare equal before and after a round trip.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ParseForm turns a submitted form into a proposal. The initiator's own
// party is supplied by the caller and is not read from the form.
func (s *Service) ParseForm(f AppointmentForm, initiator Initiator, self uuid.UUID) (Proposal, *formerr.Errors) {
	errs := new(formerr.Errors)
	var p Proposal

	switch initiator {
	case InitiatorPatient:
		p.PatientID = self
	default:
		p.PatientID = parseChoice(errs, "patient", f.Patient)
	}
	switch initiator {
	case InitiatorProvider:
		p.ProviderID = self
	default:
		p.ProviderID = parseChoice(errs, "medical_professional", f.MedicalProfessional)
	}

	raw := strings.TrimSpace(f.AppointmentDate)
	if raw == "" {
		errs.Add("appointment_date", msgRequired)
	} else if at, err := time.ParseInLocation(DateTimeLayout, raw, s.loc); err != nil {
		errs.Add("appointment_date", msgInvalidDate)
	} else {
		p.ScheduledAt = at
	}

	p.Reason = strings.TrimSpace(f.Reason)
	if p.Reason == "" {
		errs.Add("reason", msgRequired)
	}
	return p, errs
}

func parseChoice(errs *formerr.Errors, field, raw string) uuid.UUID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		errs.Add(field, msgRequired)
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		errs.Add(field, msgInvalidChoice)
		return uuid.Nil
	}
	return id
}

// Propose books a new appointment.
func (s *Service) Propose(ctx context.Context, initiator Initiator, p Proposal) (*Appointment, error) {
	a := &Appointment{
		PatientID:   p.PatientID,
		ProviderID:  p.ProviderID,
		ScheduledAt: normalize(p.ScheduledAt),
		Reason:      p.Reason,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.check(ctx, initiator, a, uuid.Nil); err != nil {
			return err
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, s.conflict(initiator, err)
	}
	return a, nil
}

// Reschedule applies p to an existing appointment. The appointment itself is
// excluded from the conflict checks, so keeping the same time succeeds; the
// time must still be in the future.
func (s *Service) Reschedule(ctx context.Context, initiator Initiator, id uuid.UUID, p Proposal) (*Appointment, error) {
	var a *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		a.PatientID = p.PatientID
		a.ProviderID = p.ProviderID
		a.ScheduledAt = normalize(p.ScheduledAt)
		a.Reason = p.Reason
		if err := s.check(ctx, initiator, a, a.ID); err != nil {
			return err
		}
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, s.conflict(initiator, err)
	}
	return a, nil
}

func (s *Service) check(ctx context.Context, initiator Initiator, a *Appointment, exclude uuid.UUID) error {
	errs := new(formerr.Errors)
	if _, err := s.participants.GetPatient(ctx, a.PatientID); err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			return err
		}
		errs.Add("patient", msgInvalidChoice)
	}
	if _, err := s.participants.GetProvider(ctx, a.ProviderID); err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			return err
		}
		errs.Add("medical_professional", msgInvalidChoice)
	}
	if !a.ScheduledAt.After(s.now()) {
		errs.Add("appointment_date", msgNotInFuture)
	}
	if !errs.Empty() {
		return errs
	}

	busy, err := s.repo.ProviderBusyAt(ctx, a.ProviderID, a.ScheduledAt, exclude)
	if err != nil {
		return fmt.Errorf("check provider slot: %w", err)
	}
	if busy {
		return &ConflictError{Busy: BusyProvider, Initiator: initiator, At: a.ScheduledAt}
	}
	busy, err = s.repo.PatientBusyAt(ctx, a.PatientID, a.ScheduledAt, exclude)
	if err != nil {
		return fmt.Errorf("check patient slot: %w", err)
	}
	if busy {
		return &ConflictError{Busy: BusyPatient, Initiator: initiator, At: a.ScheduledAt}
	}
	return nil
}

// conflict stamps the initiator onto conflicts raised by the store and
// counts every conflict.
func (s *Service) conflict(initiator Initiator, err error) error {
	var ce *ConflictError
	if !errors.As(err, &ce) {
		return err
	}
	if ce.Initiator == "" {
		ce.Initiator = initiator
	}
	if s.conflicts != nil {
		s.conflicts.BookingConflict(string(ce.Initiator), string(ce.Busy))
	}
	return ce
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) list(ctx context.Context, f ListFilter) ([]*Appointment, error) {
	items, _, err := s.repo.List(ctx, f)
	if items == nil && err == nil {
		items = []*Appointment{}
	}
	return items, err
}

// ListForPatient returns every appointment of the patient by time.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return s.list(ctx, ListFilter{PatientID: &patientID})
}

// HistoryForPatient is ListForPatient newest first.
func (s *Service) HistoryForPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return s.list(ctx, ListFilter{PatientID: &patientID, Descending: true})
}

func (s *Service) HistoryForProvider(ctx context.Context, providerID uuid.UUID) ([]*Appointment, error) {
	return s.list(ctx, ListFilter{ProviderID: &providerID, Descending: true})
}

// UpcomingForPatient returns appointments at or after now, soonest first.
func (s *Service) UpcomingForPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	now := s.now()
	return s.list(ctx, ListFilter{PatientID: &patientID, From: &now})
}

func (s *Service) UpcomingForProvider(ctx context.Context, providerID uuid.UUID) ([]*Appointment, error) {
	now := s.now()
	return s.list(ctx, ListFilter{ProviderID: &providerID, From: &now})
}

// Next returns the n soonest upcoming appointments across the facility.
func (s *Service) Next(ctx context.Context, n int) ([]*Appointment, error) {
	now := s.now()
	return s.list(ctx, ListFilter{From: &now, Limit: n})
}

func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.List(ctx, ListFilter{Limit: limit, Offset: offset})
}

func (s *Service) Count(ctx context.Context) (int, error) {
	_, total, err := s.repo.List(ctx, ListFilter{Limit: 1})
	return total, err
}
