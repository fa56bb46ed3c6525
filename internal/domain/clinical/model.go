package clinical

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

// TestedAtLayout is the datetime-local layout of the test result form.
const TestedAtLayout = "2006-01-02T15:04"

// Prescription maps to the prescription table.
type Prescription struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	ProviderID     uuid.UUID `db:"medical_professional_id" json:"medical_professional_id"`
	MedicationName string    `db:"medication_name" json:"medication_name"`
	Description    string    `db:"description" json:"description"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	PatientName    string    `json:"patient_name,omitempty"`
	ProviderName   string    `json:"medical_professional_name,omitempty"`
}

// Report maps to the report table. Either party may be absent on rows
// written before reports were linked to people.
type Report struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	ProviderID   *uuid.UUID `db:"medical_professional_id" json:"medical_professional_id,omitempty"`
	Title        string     `db:"title" json:"title"`
	Summary      string     `db:"summary" json:"summary"`
	CreatedAt    time.Time  `db:"created_at" json:"date"`
	PatientName  string     `json:"patient_name,omitempty"`
	ProviderName string     `json:"medical_professional_name,omitempty"`
}

// TestResult maps to the test_result table. ProviderID is cleared when the
// recording provider is deleted.
type TestResult struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	ProviderID   *uuid.UUID `db:"medical_professional_id" json:"medical_professional_id,omitempty"`
	TestedAt     time.Time  `db:"tested_at" json:"test_date"`
	Description  string     `db:"description" json:"description"`
	ResultData   string     `db:"result_data" json:"result_data"`
	PatientName  string     `json:"patient_name,omitempty"`
	ProviderName string     `json:"medical_professional_name,omitempty"`
}

// Filter narrows a record listing. Listings are newest first.
type Filter struct {
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
	Limit      int
	Offset     int
}

type PrescriptionForm struct {
	Patient        string `form:"patient"`
	MedicationName string `form:"medication_name"`
	Description    string `form:"description"`
}

type ReportForm struct {
	Patient string `form:"patient"`
	Title   string `form:"title"`
	Summary string `form:"summary"`
}

type TestResultForm struct {
	Patient     string `form:"patient"`
	TestedAt    string `form:"test_date"`
	Description string `form:"description"`
	ResultData  string `form:"result_data"`
}
