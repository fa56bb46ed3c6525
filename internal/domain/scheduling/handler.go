package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcore/hospital/internal/domain/identity"
	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/web"
	"github.com/medcore/hospital/pkg/pagination"
)

const (
	patientDashboardPath    = "/dashboard/patient/"
	patientAppointmentsPath = "/dashboard/patient/appointments/"
	medicalDashboardPath    = "/dashboard/medical/"
	adminAppointmentsPath   = "/admin/appointments/"
)

// Directory lists the parties offered in booking forms.
type Directory interface {
	ListPatients(ctx context.Context, limit, offset int) ([]*identity.Patient, int, error)
	ListProviders(ctx context.Context, limit, offset int) ([]*identity.MedicalProfessional, int, error)
}

type Handler struct {
	svc  *Service
	dir  Directory
	gate *auth.Gate
}

func NewHandler(svc *Service, dir Directory, gate *auth.Gate) *Handler {
	return &Handler{svc: svc, dir: dir, gate: gate}
}

// RegisterPatientRoutes mounts booking pages on the patient portal group.
func (h *Handler) RegisterPatientRoutes(patient *echo.Group) {
	create := h.gate.Require(auth.KindAppointment, auth.ActCreate, "Only patients can create appointments.")
	list := h.gate.Require(auth.KindAppointment, auth.ActList, "Only patients can view appointments.")
	edit := h.gate.Require(auth.KindAppointment, auth.ActEdit, "Only patients can modify appointments.")
	remove := h.gate.Require(auth.KindAppointment, auth.ActDelete, "Only patients can delete appointments.")

	patient.GET("/new_appointment/", h.PatientNewForm, create)
	patient.POST("/new_appointment/", h.PatientCreate, create)
	patient.GET("/appointments/", h.PatientList, list)
	patient.GET("/appointments/:id/edit/", h.PatientEditForm, edit)
	patient.POST("/appointments/:id/edit/", h.PatientUpdate, edit)
	patient.POST("/appointments/:id/delete/", h.PatientDelete, remove)
	patient.GET("/appointments/:id/delete/", h.PatientDeleteGet, remove)
}

// RegisterMedicalRoutes mounts the provider booking page.
func (h *Handler) RegisterMedicalRoutes(medical *echo.Group) {
	create := h.gate.Require(auth.KindAppointment, auth.ActCreate, "Only Medical Professionals can create appointments.")
	medical.GET("/new_appointment/", h.MedicalNewForm, create)
	medical.POST("/new_appointment/", h.MedicalCreate, create)
}

// RegisterAdminRoutes mounts the facility-wide appointment pages. admin is
// the /admin group, records the /facility-admin group.
func (h *Handler) RegisterAdminRoutes(admin, records *echo.Group) {
	list := h.gate.Require(auth.KindAppointment, auth.ActList, "Only administrators can view appointments.")
	view := h.gate.Require(auth.KindAppointment, auth.ActView, "Only administrators can view appointment details.")
	create := h.gate.Require(auth.KindAppointment, auth.ActCreate, "Only administrators can create appointments.")
	edit := h.gate.Require(auth.KindAppointment, auth.ActEdit, "Only administrators can edit appointments.")
	remove := h.gate.Require(auth.KindAppointment, auth.ActDelete, "Only administrators can delete appointments.")

	admin.GET("/appointments/", h.AdminList, list)
	admin.GET("/new_appointment/", h.AdminNewForm, create)
	admin.POST("/new_appointment/", h.AdminCreate, create)
	records.GET("/appointments/:id/view/", h.AdminView, view)
	records.GET("/appointments/:id/edit/", h.AdminEditForm, edit)
	records.POST("/appointments/:id/edit/", h.AdminUpdate, edit)
	records.GET("/appointments/:id/delete/", h.AdminConfirmDelete, remove)
	records.POST("/appointments/:id/delete/", h.AdminDelete, remove)
}

// choices loads the pick lists a booking form of the initiator needs.
func (h *Handler) choices(ctx context.Context, initiator Initiator) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	if initiator != InitiatorPatient {
		patients, _, err := h.dir.ListPatients(ctx, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("list patients: %w", err)
		}
		data["patients"] = patients
	}
	if initiator != InitiatorProvider {
		providers, _, err := h.dir.ListProviders(ctx, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("list providers: %w", err)
		}
		data["medical_professionals"] = providers
	}
	return data, nil
}

func (h *Handler) renderForm(c echo.Context, initiator Initiator, view string, extra map[string]interface{}) error {
	data, err := h.choices(c.Request().Context(), initiator)
	if err != nil {
		return err
	}
	for k, v := range extra {
		data[k] = v
	}
	return web.Render(c, http.StatusOK, view, data)
}

// submit parses the posted form and books or reschedules it. On a validation
// or conflict failure the form is re-rendered with failMsg flashed; ok is
// false in that case and the returned error is the render result.
func (h *Handler) submit(c echo.Context, initiator Initiator, view, failMsg string, existing *Appointment) (a *Appointment, ok bool, err error) {
	ctx := c.Request().Context()
	var form AppointmentForm
	if err := c.Bind(&form); err != nil {
		return nil, false, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var self uuid.UUID
	switch initiator {
	case InitiatorPatient, InitiatorProvider:
		self = auth.FromEcho(c).ProfileID
	}

	invalid := func(cause error) (*Appointment, bool, error) {
		data, err := h.choices(ctx, initiator)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			data["appointment"] = existing
		}
		if failMsg != "" {
			web.AddFlash(c, web.LevelError, failMsg)
		}
		return nil, false, web.RenderFormError(c, view, data, cause)
	}

	p, errs := h.svc.ParseForm(form, initiator, self)
	if !errs.Empty() {
		return invalid(errs)
	}

	if existing == nil {
		a, err = h.svc.Propose(ctx, initiator, p)
	} else {
		a, err = h.svc.Reschedule(ctx, initiator, existing.ID, p)
	}
	if err != nil {
		return invalid(err)
	}
	return a, true, nil
}

// owned loads an appointment the principal may act on. Appointments that
// belong to someone else are reported as missing.
func (h *Handler) owned(c echo.Context, act auth.Action) (*Appointment, error) {
	id, err := web.UUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return nil, err
	}
	target := auth.Target{Kind: auth.KindAppointment, PatientID: &a.PatientID, ProviderID: &a.ProviderID}
	if !h.gate.Authorize(auth.FromEcho(c), act, target) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return a, nil
}

// -- Patient --

func (h *Handler) PatientNewForm(c echo.Context) error {
	return h.renderForm(c, InitiatorPatient, "patient_new_appointment", nil)
}

func (h *Handler) PatientCreate(c echo.Context) error {
	_, ok, err := h.submit(c, InitiatorPatient, "patient_new_appointment",
		"There was a problem scheduling your appointment.", nil)
	if !ok {
		return err
	}
	return web.RedirectWithFlash(c, patientDashboardPath, web.LevelSuccess, "Appointment scheduled successfully!")
}

func (h *Handler) PatientList(c echo.Context) error {
	items, err := h.svc.ListForPatient(c.Request().Context(), auth.FromEcho(c).ProfileID)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "patient_appointments", map[string]interface{}{
		"appointments": items,
	})
}

func (h *Handler) PatientEditForm(c echo.Context) error {
	a, err := h.owned(c, auth.ActEdit)
	if err != nil {
		return err
	}
	return h.renderForm(c, InitiatorPatient, "patient_edit_appointment", map[string]interface{}{
		"appointment": a,
		"form":        FormOf(a, h.svc.Location()),
	})
}

func (h *Handler) PatientUpdate(c echo.Context) error {
	a, err := h.owned(c, auth.ActEdit)
	if err != nil {
		return err
	}
	_, ok, err := h.submit(c, InitiatorPatient, "patient_edit_appointment",
		"Error updating the appointment. Please correct the errors below.", a)
	if !ok {
		return err
	}
	return web.RedirectWithFlash(c, patientAppointmentsPath, web.LevelSuccess, "Appointment updated successfully!")
}

func (h *Handler) PatientDelete(c echo.Context) error {
	a, err := h.owned(c, auth.ActDelete)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), a.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return web.RedirectWithFlash(c, patientAppointmentsPath, web.LevelSuccess, "Appointment deleted successfully.")
}

// PatientDeleteGet refuses deletion over GET.
func (h *Handler) PatientDeleteGet(c echo.Context) error {
	if _, err := h.owned(c, auth.ActDelete); err != nil {
		return err
	}
	return web.RedirectWithFlash(c, patientAppointmentsPath, web.LevelError, "Invalid request method.")
}

// -- Medical professional --

func (h *Handler) MedicalNewForm(c echo.Context) error {
	return h.renderForm(c, InitiatorProvider, "medical_new_appointment", nil)
}

func (h *Handler) MedicalCreate(c echo.Context) error {
	_, ok, err := h.submit(c, InitiatorProvider, "medical_new_appointment",
		"There was a problem creating the appointment. Please correct the errors below.", nil)
	if !ok {
		return err
	}
	return web.RedirectWithFlash(c, medicalDashboardPath, web.LevelSuccess, "Appointment created successfully!")
}

// -- Administrator --

func (h *Handler) AdminList(c echo.Context) error {
	page := pagination.FromContext(c)
	items, total, err := h.svc.ListAll(c.Request().Context(), page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "admin_appointments", pagination.NewResponse(items, total, page))
}

func (h *Handler) AdminNewForm(c echo.Context) error {
	return h.renderForm(c, InitiatorAdmin, "admin_new_appointment", nil)
}

func (h *Handler) AdminCreate(c echo.Context) error {
	_, ok, err := h.submit(c, InitiatorAdmin, "admin_new_appointment", "", nil)
	if !ok {
		return err
	}
	return web.RedirectWithFlash(c, adminAppointmentsPath, web.LevelSuccess, "Appointment created successfully!")
}

func (h *Handler) AdminEditForm(c echo.Context) error {
	a, err := h.owned(c, auth.ActEdit)
	if err != nil {
		return err
	}
	return h.renderForm(c, InitiatorAdmin, "admin_edit_appointment", map[string]interface{}{
		"appointment": a,
		"form":        FormOf(a, h.svc.Location()),
	})
}

func (h *Handler) AdminUpdate(c echo.Context) error {
	a, err := h.owned(c, auth.ActEdit)
	if err != nil {
		return err
	}
	_, ok, err := h.submit(c, InitiatorAdmin, "admin_edit_appointment", "Please correct the errors below.", a)
	if !ok {
		return err
	}
	return web.RedirectWithFlash(c, adminAppointmentsPath, web.LevelSuccess, "Appointment updated successfully.")
}

func (h *Handler) AdminView(c echo.Context) error {
	a, err := h.owned(c, auth.ActView)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "admin_view_appointment", map[string]interface{}{
		"appointment": a,
	})
}

func (h *Handler) AdminConfirmDelete(c echo.Context) error {
	a, err := h.owned(c, auth.ActDelete)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "admin_confirm_delete_appointment", map[string]interface{}{
		"appointment": a,
	})
}

func (h *Handler) AdminDelete(c echo.Context) error {
	a, err := h.owned(c, auth.ActDelete)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), a.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return web.RedirectWithFlash(c, adminAppointmentsPath, web.LevelSuccess, "Appointment deleted successfully.")
}
