// Package facility serves the administrator's patient and doctor
// management pages.
package facility

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medcore/hospital/internal/domain/clinical"
	"github.com/medcore/hospital/internal/domain/identity"
	"github.com/medcore/hospital/internal/domain/scheduling"
	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/web"
	"github.com/medcore/hospital/pkg/pagination"
)

const (
	patientsPath = "/admin/patients/"
	doctorsPath  = "/admin/doctors/"
)

// People is the part of *identity.Service the administrator pages use.
type People interface {
	Signup(ctx context.Context, role auth.Role, f identity.SignupForm) (*identity.Identity, *identity.RoleProfile, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	ListPatients(ctx context.Context, limit, offset int) ([]*identity.Patient, int, error)
	UpdatePatient(ctx context.Context, id uuid.UUID, f identity.PersonForm, billing bool) (*identity.Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*identity.MedicalProfessional, error)
	ListProviders(ctx context.Context, limit, offset int) ([]*identity.MedicalProfessional, int, error)
	UpdateProvider(ctx context.Context, id uuid.UUID, f identity.PersonForm) (*identity.MedicalProfessional, error)
	DeleteProvider(ctx context.Context, id uuid.UUID) (*identity.MedicalProfessional, error)
}

// Appointments is the part of *scheduling.Service the detail pages read.
type Appointments interface {
	HistoryForPatient(ctx context.Context, patientID uuid.UUID) ([]*scheduling.Appointment, error)
	HistoryForProvider(ctx context.Context, providerID uuid.UUID) ([]*scheduling.Appointment, error)
}

// Records is the part of *clinical.Service the detail pages read.
type Records interface {
	PrescriptionsForPatient(ctx context.Context, patientID uuid.UUID) ([]*clinical.Prescription, error)
	ReportsForPatient(ctx context.Context, patientID uuid.UUID) ([]*clinical.Report, error)
	ReportsByProvider(ctx context.Context, providerID uuid.UUID) ([]*clinical.Report, error)
}

// CareTeam lists a provider's assigned patients. *careteam.Service
// implements it.
type CareTeam interface {
	PatientsFor(ctx context.Context, providerID uuid.UUID) ([]*identity.Patient, error)
}

type Handler struct {
	people       People
	appointments Appointments
	records      Records
	careTeam     CareTeam
	gate         *auth.Gate
	logger       zerolog.Logger
}

func NewHandler(people People, appointments Appointments, records Records, careTeam CareTeam, gate *auth.Gate, logger zerolog.Logger) *Handler {
	return &Handler{people: people, appointments: appointments, records: records, careTeam: careTeam, gate: gate, logger: logger}
}

// RegisterRoutes mounts the lists and creation pages on the /admin group and
// the per-record pages on the /facility-admin group.
func (h *Handler) RegisterRoutes(admin, records *echo.Group) {
	require := func(act auth.Action, msg string) echo.MiddlewareFunc {
		return h.gate.Require(auth.KindFacility, act, msg)
	}

	admin.GET("/patients/", h.ListPatients, require(auth.ActList, "Only administrators can view patients."))
	admin.GET("/doctors/", h.ListDoctors, require(auth.ActList, "Only administrators can view doctors."))
	admin.GET("/settings/", h.Settings, require(auth.ActView, "Only administrators can view settings."))

	newPatient := require(auth.ActCreate, "Only administrators can create patients.")
	admin.GET("/new_patient/", h.NewPatientForm, newPatient)
	admin.POST("/new_patient/", h.CreatePatient, newPatient)
	newDoctor := require(auth.ActCreate, "Only administrators can create doctors.")
	admin.GET("/new_doctor/", h.NewDoctorForm, newDoctor)
	admin.POST("/new_doctor/", h.CreateDoctor, newDoctor)

	records.GET("/patients/:id/view/", h.ViewPatient, require(auth.ActView, "Only administrators can view patient details."))
	editPatient := require(auth.ActEdit, "Only administrators can edit patient details.")
	records.GET("/patients/:id/edit/", h.EditPatientForm, editPatient)
	records.POST("/patients/:id/edit/", h.UpdatePatient, editPatient)
	deletePatient := require(auth.ActDelete, "Only administrators can delete patients.")
	records.GET("/patients/:id/delete/", h.ConfirmDeletePatient, deletePatient)
	records.POST("/patients/:id/delete/", h.DeletePatient, deletePatient)

	records.GET("/doctors/:id/view/", h.ViewDoctor, require(auth.ActView, "Only administrators can view doctor details."))
	editDoctor := require(auth.ActEdit, "Only administrators can edit doctor details.")
	records.GET("/doctors/:id/edit/", h.EditDoctorForm, editDoctor)
	records.POST("/doctors/:id/edit/", h.UpdateDoctor, editDoctor)
	deleteDoctor := require(auth.ActDelete, "Only administrators can delete doctors.")
	records.GET("/doctors/:id/delete/", h.ConfirmDeleteDoctor, deleteDoctor)
	records.POST("/doctors/:id/delete/", h.DeleteDoctor, deleteDoctor)
}

func (h *Handler) Settings(c echo.Context) error {
	return web.Render(c, http.StatusOK, "admin_settings", nil)
}

// -- Patients --

func (h *Handler) ListPatients(c echo.Context) error {
	page := pagination.FromContext(c)
	items, total, err := h.people.ListPatients(c.Request().Context(), page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "admin_patients", pagination.NewResponse(items, total, page))
}

func (h *Handler) NewPatientForm(c echo.Context) error {
	return web.Render(c, http.StatusOK, "admin_new_patient", nil)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var form identity.SignupForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ident, _, err := h.people.Signup(c.Request().Context(), auth.RolePatient, form)
	if err != nil {
		web.AddFlash(c, web.LevelError, "There was a problem creating the patient. Please correct the errors below.")
		return web.RenderFormError(c, "admin_new_patient", nil, err)
	}
	h.logger.Info().Str("identity_id", ident.ID.String()).Msg("patient created by administrator")
	return web.RedirectWithFlash(c, patientsPath, web.LevelSuccess, "Patient created successfully!")
}

// patient loads the :id patient, answering 404 when it does not exist.
func (h *Handler) patient(c echo.Context) (*identity.Patient, error) {
	id, err := web.UUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	p, err := h.people.GetPatient(c.Request().Context(), id)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return p, err
}

func (h *Handler) ViewPatient(c echo.Context) error {
	p, err := h.patient(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	appointments, err := h.appointments.HistoryForPatient(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("patient appointments: %w", err)
	}
	prescriptions, err := h.records.PrescriptionsForPatient(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("patient prescriptions: %w", err)
	}
	reports, err := h.records.ReportsForPatient(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("patient reports: %w", err)
	}
	return web.Render(c, http.StatusOK, "admin_view_patient", map[string]interface{}{
		"patient":       p,
		"appointments":  appointments,
		"prescriptions": prescriptions,
		"reports":       reports,
	})
}

func patientForm(p *identity.Patient) identity.PersonForm {
	f := identity.PersonForm{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Address:   p.Address,
		Phone:     p.Phone,
	}
	if p.DateOfBirth != nil {
		f.DateOfBirth = p.DateOfBirth.Format(identity.DateLayout)
	}
	return f
}

func (h *Handler) EditPatientForm(c echo.Context) error {
	p, err := h.patient(c)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "admin_edit_patient", map[string]interface{}{
		"patient": p,
		"form":    patientForm(p),
	})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	p, err := h.patient(c)
	if err != nil {
		return err
	}
	var form identity.PersonForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.people.UpdatePatient(c.Request().Context(), p.ID, form, false); err != nil {
		return web.RenderFormError(c, "admin_edit_patient", map[string]interface{}{"patient": p}, err)
	}
	return web.RedirectWithFlash(c, patientsPath, web.LevelSuccess, "Patient information updated successfully.")
}

func (h *Handler) ConfirmDeletePatient(c echo.Context) error {
	p, err := h.patient(c)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "admin_confirm_delete_patient", map[string]interface{}{"patient": p})
}

// DeletePatient removes the patient's identity together with everything the
// patient owns.
func (h *Handler) DeletePatient(c echo.Context) error {
	p, err := h.patient(c)
	if err != nil {
		return err
	}
	if _, err := h.people.DeletePatient(c.Request().Context(), p.ID); err != nil && !errors.Is(err, identity.ErrNotFound) {
		return err
	}
	h.logger.Info().Str("patient_id", p.ID.String()).Msg("patient deleted by administrator")
	return web.RedirectWithFlash(c, patientsPath, web.LevelSuccess, "Patient has been deleted successfully.")
}

// -- Doctors --

func (h *Handler) ListDoctors(c echo.Context) error {
	page := pagination.FromContext(c)
	items, total, err := h.people.ListProviders(c.Request().Context(), page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "admin_doctors", pagination.NewResponse(items, total, page))
}

func (h *Handler) NewDoctorForm(c echo.Context) error {
	return web.Render(c, http.StatusOK, "admin_new_doctor", nil)
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var form identity.SignupForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ident, _, err := h.people.Signup(c.Request().Context(), auth.RoleMedical, form)
	if err != nil {
		web.AddFlash(c, web.LevelError, "There was a problem creating the doctor. Please correct the errors below.")
		return web.RenderFormError(c, "admin_new_doctor", nil, err)
	}
	h.logger.Info().Str("identity_id", ident.ID.String()).Msg("doctor created by administrator")
	return web.RedirectWithFlash(c, doctorsPath, web.LevelSuccess, "Doctor created successfully!")
}

func (h *Handler) doctor(c echo.Context) (*identity.MedicalProfessional, error) {
	id, err := web.UUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	d, err := h.people.GetProvider(c.Request().Context(), id)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return d, err
}

func (h *Handler) ViewDoctor(c echo.Context) error {
	d, err := h.doctor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	patients, err := h.careTeam.PatientsFor(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("assigned patients: %w", err)
	}
	appointments, err := h.appointments.HistoryForProvider(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("doctor appointments: %w", err)
	}
	reports, err := h.records.ReportsByProvider(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("doctor reports: %w", err)
	}
	return web.Render(c, http.StatusOK, "admin_view_doctor", map[string]interface{}{
		"doctor":       d,
		"patients":     patients,
		"appointments": appointments,
		"reports":      reports,
	})
}

func (h *Handler) EditDoctorForm(c echo.Context) error {
	d, err := h.doctor(c)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "admin_edit_doctor", map[string]interface{}{
		"doctor": d,
		"form": identity.PersonForm{
			FirstName:      d.FirstName,
			LastName:       d.LastName,
			Email:          d.Email,
			Phone:          d.Phone,
			Specialization: d.Specialization,
		},
	})
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	d, err := h.doctor(c)
	if err != nil {
		return err
	}
	var form identity.PersonForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.people.UpdateProvider(c.Request().Context(), d.ID, form); err != nil {
		return web.RenderFormError(c, "admin_edit_doctor", map[string]interface{}{"doctor": d}, err)
	}
	return web.RedirectWithFlash(c, doctorsPath, web.LevelSuccess, "Doctor information updated successfully.")
}

func (h *Handler) ConfirmDeleteDoctor(c echo.Context) error {
	d, err := h.doctor(c)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "admin_confirm_delete_doctor", map[string]interface{}{"doctor": d})
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	d, err := h.doctor(c)
	if err != nil {
		return err
	}
	if _, err := h.people.DeleteProvider(c.Request().Context(), d.ID); err != nil && !errors.Is(err, identity.ErrNotFound) {
		return err
	}
	h.logger.Info().Str("doctor_id", d.ID.String()).Msg("doctor deleted by administrator")
	return web.RedirectWithFlash(c, doctorsPath, web.LevelSuccess, "Doctor has been deleted successfully.")
}
