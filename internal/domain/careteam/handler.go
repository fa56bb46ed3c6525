package careteam

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/web"
	"github.com/medcore/hospital/pkg/formerr"
)

const (
	patientsPath     = "/dashboard/medical/patients/"
	msgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."
)

type Handler struct {
	svc  *Service
	gate *auth.Gate
}

func NewHandler(svc *Service, gate *auth.Gate) *Handler {
	return &Handler{svc: svc, gate: gate}
}

// RegisterRoutes mounts the provider's patient list on the medical portal
// group.
func (h *Handler) RegisterRoutes(medical *echo.Group) {
	list := h.gate.Require(auth.KindCareAssignment, auth.ActList, "Only Medical Professionals can view patients.")
	create := h.gate.Require(auth.KindCareAssignment, auth.ActCreate, "Only Medical Professionals can add patients.")
	remove := h.gate.Require(auth.KindCareAssignment, auth.ActDelete, "Only Medical Professionals can remove patients.")

	medical.GET("/patients/", h.ListPatients, list)
	medical.GET("/new_patient/", h.NewPatientForm, create)
	medical.POST("/new_patient/", h.AddPatient, create)
	medical.POST("/patients/:id/remove/", h.RemovePatient, remove)
}

func (h *Handler) ListPatients(c echo.Context) error {
	p := auth.FromEcho(c)
	patients, err := h.svc.PatientsFor(c.Request().Context(), p.ProfileID)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "medical_patients", map[string]interface{}{
		"patients": patients,
	})
}

func (h *Handler) newPatientData(c echo.Context) (map[string]interface{}, error) {
	choices, err := h.svc.AssignablePatients(c.Request().Context(), auth.FromEcho(c).ProfileID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"patients": choices}, nil
}

func (h *Handler) NewPatientForm(c echo.Context) error {
	data, err := h.newPatientData(c)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "medical_new_patient", data)
}

func (h *Handler) AddPatient(c echo.Context) error {
	ctx := c.Request().Context()
	p := auth.FromEcho(c)

	invalid := func(msg string) error {
		data, err := h.newPatientData(c)
		if err != nil {
			return err
		}
		web.AddFlash(c, web.LevelError, "There was a problem adding the patient.")
		return web.RenderInvalid(c, "medical_new_patient", data, formerr.Field("patient", msg))
	}

	patientID, err := uuid.Parse(c.FormValue("patient"))
	if err != nil {
		if c.FormValue("patient") == "" {
			return invalid("This field is required.")
		}
		return invalid(msgInvalidChoice)
	}

	patient, err := h.svc.Assign(ctx, p.ProfileID, patientID)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyAssigned):
		return invalid(msgInvalidChoice)
	case err != nil:
		return fmt.Errorf("assign patient: %w", err)
	}
	return web.RedirectWithFlash(c, patientsPath, web.LevelSuccess,
		fmt.Sprintf("Patient %s added successfully!", patient.FullName()))
}

func (h *Handler) RemovePatient(c echo.Context) error {
	patientID, err := web.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	err = h.svc.Unassign(c.Request().Context(), auth.FromEcho(c).ProfileID, patientID)
	if errors.Is(err, ErrNotAssigned) {
		return auth.DenyTo(c, patientsPath, "Patient not found or not associated with you.")
	}
	if err != nil {
		return err
	}
	return web.RedirectWithFlash(c, patientsPath, web.LevelSuccess, "Patient removed from your list.")
}
