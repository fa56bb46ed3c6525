package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/domain/careteam"
	"github.com/medcore/hospital/internal/domain/identity"
	"github.com/medcore/hospital/pkg/formerr"
)

const (
	msgRequired      = "This field is required."
	msgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."
	msgInvalidDate   = "Enter a valid date/time."
	maxTitleLength   = 255
)

// PatientPicker is the provider's patient picker. *careteam.Service
// implements it.
type PatientPicker interface {
	Candidates(ctx context.Context, providerID uuid.UUID) (*careteam.Candidates, error)
}

// Patients looks up patients by id. *identity.Service implements it.
type Patients interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

type Option func(*Service)

// WithLocation sets the zone test result dates are read in. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

type Service struct {
	prescriptions PrescriptionRepository
	reports       ReportRepository
	results       TestResultRepository
	picker        PatientPicker
	patients      Patients
	loc           *time.Location
}

func NewService(rx PrescriptionRepository, reports ReportRepository, results TestResultRepository,
	picker PatientPicker, patients Patients, opts ...Option) *Service {
	s := &Service{
		prescriptions: rx,
		reports:       reports,
		results:       results,
		picker:        picker,
		patients:      patients,
		loc:           time.UTC,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func required(errs *formerr.Errors, field, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		errs.Add(field, msgRequired)
	}
	return value
}

func maxLength(errs *formerr.Errors, field, value string, n int) {
	if l := utf8.RuneCountInString(value); l > n {
		errs.Add(field, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", n, l))
	}
}

// choice parses a patient selection and checks it with allowed.
func choice(errs *formerr.Errors, raw string, allowed func(uuid.UUID) (bool, error)) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		errs.Add("patient", msgRequired)
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		errs.Add("patient", msgInvalidChoice)
		return uuid.Nil, nil
	}
	ok, err := allowed(id)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		errs.Add("patient", msgInvalidChoice)
	}
	return id, nil
}

func (s *Service) patientExists(ctx context.Context) func(uuid.UUID) (bool, error) {
	return func(id uuid.UUID) (bool, error) {
		_, err := s.patients.GetPatient(ctx, id)
		if errors.Is(err, identity.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

func (s *Service) inPicker(ctx context.Context, providerID uuid.UUID) func(uuid.UUID) (bool, error) {
	return func(id uuid.UUID) (bool, error) {
		c, err := s.picker.Candidates(ctx, providerID)
		if err != nil {
			return false, err
		}
		return c.Contains(id), nil
	}
}

func listOrEmpty[T any](items []*T, err error) ([]*T, error) {
	if err == nil && items == nil {
		items = []*T{}
	}
	return items, err
}

// -- Prescriptions --

// CreatePrescription records a prescription written by the provider for any
// patient of the facility.
func (s *Service) CreatePrescription(ctx context.Context, providerID uuid.UUID, f PrescriptionForm) (*Prescription, error) {
	errs := new(formerr.Errors)
	patientID, err := choice(errs, f.Patient, s.patientExists(ctx))
	if err != nil {
		return nil, err
	}
	p := &Prescription{
		PatientID:      patientID,
		ProviderID:     providerID,
		MedicationName: required(errs, "medication_name", f.MedicationName),
		Description:    required(errs, "description", f.Description),
	}
	maxLength(errs, "medication_name", p.MedicationName, maxTitleLength)
	if !errs.Empty() {
		return nil, errs
	}
	if err := s.prescriptions.Create(ctx, p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, formerr.Field("patient", msgInvalidChoice)
		}
		return nil, fmt.Errorf("create prescription: %w", err)
	}
	return p, nil
}

// PrescriptionsForPatient is newest first.
func (s *Service) PrescriptionsForPatient(ctx context.Context, patientID uuid.UUID) ([]*Prescription, error) {
	items, _, err := s.prescriptions.List(ctx, Filter{PatientID: &patientID})
	return listOrEmpty(items, err)
}

// -- Reports --

// ReportCandidates is the patient picker of the report form.
func (s *Service) ReportCandidates(ctx context.Context, providerID uuid.UUID) (*careteam.Candidates, error) {
	return s.picker.Candidates(ctx, providerID)
}

// CreateReport records a report by the provider. The patient must be one of
// the provider's picker candidates.
func (s *Service) CreateReport(ctx context.Context, providerID uuid.UUID, f ReportForm) (*Report, error) {
	errs := new(formerr.Errors)
	patientID, err := choice(errs, f.Patient, s.inPicker(ctx, providerID))
	if err != nil {
		return nil, err
	}
	r := &Report{
		PatientID:  &patientID,
		ProviderID: &providerID,
		Title:      required(errs, "title", f.Title),
		Summary:    required(errs, "summary", f.Summary),
	}
	maxLength(errs, "title", r.Title, maxTitleLength)
	if !errs.Empty() {
		return nil, errs
	}
	if err := s.reports.Create(ctx, r); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, formerr.Field("patient", msgInvalidChoice)
		}
		return nil, fmt.Errorf("create report: %w", err)
	}
	return r, nil
}

func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *Service) ReportsForPatient(ctx context.Context, patientID uuid.UUID) ([]*Report, error) {
	items, _, err := s.reports.List(ctx, Filter{PatientID: &patientID})
	return listOrEmpty(items, err)
}

// ReportsByProvider lists the reports the provider authored.
func (s *Service) ReportsByProvider(ctx context.Context, providerID uuid.UUID) ([]*Report, error) {
	items, _, err := s.reports.List(ctx, Filter{ProviderID: &providerID})
	return listOrEmpty(items, err)
}

// LatestReports returns the n newest reports of the facility.
func (s *Service) LatestReports(ctx context.Context, n int) ([]*Report, error) {
	items, _, err := s.reports.List(ctx, Filter{Limit: n})
	return listOrEmpty(items, err)
}

func (s *Service) ListReports(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	return s.reports.List(ctx, Filter{Limit: limit, Offset: offset})
}

// -- Test results --

// CreateTestResult records a result for one of the provider's picker
// candidates.
func (s *Service) CreateTestResult(ctx context.Context, providerID uuid.UUID, f TestResultForm) (*TestResult, error) {
	errs := new(formerr.Errors)
	patientID, err := choice(errs, f.Patient, s.inPicker(ctx, providerID))
	if err != nil {
		return nil, err
	}
	tr := &TestResult{
		PatientID:   patientID,
		ProviderID:  &providerID,
		Description: required(errs, "description", f.Description),
		ResultData:  required(errs, "result_data", f.ResultData),
	}
	if raw := required(errs, "test_date", f.TestedAt); raw != "" {
		at, err := time.ParseInLocation(TestedAtLayout, raw, s.loc)
		if err != nil {
			errs.Add("test_date", msgInvalidDate)
		}
		tr.TestedAt = at.UTC()
	}
	if !errs.Empty() {
		return nil, errs
	}
	if err := s.results.Create(ctx, tr); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, formerr.Field("patient", msgInvalidChoice)
		}
		return nil, fmt.Errorf("create test result: %w", err)
	}
	return tr, nil
}

func (s *Service) TestResultsForPatient(ctx context.Context, patientID uuid.UUID) ([]*TestResult, error) {
	items, _, err := s.results.List(ctx, Filter{PatientID: &patientID})
	return listOrEmpty(items, err)
}

func (s *Service) TestResultsByProvider(ctx context.Context, providerID uuid.UUID) ([]*TestResult, error) {
	items, _, err := s.results.List(ctx, Filter{ProviderID: &providerID})
	return listOrEmpty(items, err)
}
