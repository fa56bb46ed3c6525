package portal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/medcore/hospital/internal/domain/careteam"
	"github.com/medcore/hospital/internal/domain/identity"
	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/web"
)

const (
	billingPath  = "/dashboard/patient/billing"
	patientsPath = "/dashboard/medical/patients/"
)

type Handler struct {
	appointments Appointments
	records      Records
	people       People
	careTeam     CareTeam
	gate         *auth.Gate
}

func NewHandler(appointments Appointments, records Records, people People, careTeam CareTeam, gate *auth.Gate) *Handler {
	return &Handler{appointments: appointments, records: records, people: people, careTeam: careTeam, gate: gate}
}

// RegisterRoutes mounts the landing page on root and the dashboards on the
// role groups.
func (h *Handler) RegisterRoutes(root, dashboard, patient, medical, admin *echo.Group) {
	root.GET("/", h.Home)
	dashboard.GET("/", h.Dashboard, auth.RequireLogin())

	view := h.gate.Require(auth.KindDashboard, auth.ActView, "You do not have access to this dashboard.")
	patient.GET("/", h.PatientDashboard, view)
	medical.GET("/", h.MedicalDashboard, view)
	admin.GET("/", h.AdminDashboard, view)

	billingView := h.gate.Require(auth.KindBilling, auth.ActView, "Only patients and admins can update billing information.")
	billingEdit := h.gate.Require(auth.KindBilling, auth.ActEdit, "Only patients and admins can update billing information.")
	for _, path := range []string{"/billing", "/billing/"} {
		patient.GET(path, h.BillingForm, billingView)
		patient.POST(path, h.UpdateBilling, billingEdit)
	}

	pharmacy := h.gate.Require(auth.KindPharmacy, auth.ActView, "Only patients can use this feature.")
	patient.GET("/find_pharmacy/", h.FindPharmacyForm, pharmacy)
	patient.POST("/find_pharmacy/", h.FindPharmacy, pharmacy)

	medical.GET("/patient/:id/", h.MedicalPatientDetail,
		h.gate.Require(auth.KindCareAssignment, auth.ActView, "Only Medical Professionals can view patient details."))
}

func (h *Handler) Home(c echo.Context) error {
	return web.Render(c, http.StatusOK, "home", nil)
}

// Dashboard renders the dashboard of the principal's role. An identity
// without a role gets the landing page.
func (h *Handler) Dashboard(c echo.Context) error {
	switch auth.FromEcho(c).Role {
	case auth.RolePatient:
		return h.PatientDashboard(c)
	case auth.RoleMedical:
		return h.MedicalDashboard(c)
	case auth.RoleAdmin:
		return h.AdminDashboard(c)
	}
	return h.Home(c)
}

func (h *Handler) PatientDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	id := auth.FromEcho(c).ProfileID
	upcoming, err := h.appointments.UpcomingForPatient(ctx, id)
	if err != nil {
		return fmt.Errorf("upcoming appointments: %w", err)
	}
	prescriptions, err := h.records.PrescriptionsForPatient(ctx, id)
	if err != nil {
		return fmt.Errorf("prescriptions: %w", err)
	}
	return web.Render(c, http.StatusOK, "patient_dashboard", map[string]interface{}{
		"upcoming_appointments": upcoming,
		"prescriptions":         prescriptions,
	})
}

func (h *Handler) MedicalDashboard(c echo.Context) error {
	upcoming, err := h.appointments.UpcomingForProvider(c.Request().Context(), auth.FromEcho(c).ProfileID)
	if err != nil {
		return fmt.Errorf("upcoming appointments: %w", err)
	}
	return web.Render(c, http.StatusOK, "medical_dashboard", map[string]interface{}{
		"upcoming_appointments": upcoming,
	})
}

// AdminDashboard loads its four independent panels concurrently.
func (h *Handler) AdminDashboard(c echo.Context) error {
	var d AdminDashboard
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() (err error) {
		d.TotalPatients, err = h.people.CountPatients(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.TotalDoctors, err = h.people.CountProviders(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.UpcomingAppointments, err = h.appointments.Next(ctx, dashboardListSize)
		return err
	})
	g.Go(func() (err error) {
		d.Reports, err = h.records.LatestReports(ctx, dashboardListSize)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("admin dashboard: %w", err)
	}
	return web.Render(c, http.StatusOK, "admin_dashboard", &d)
}

// -- Billing --

func currentInfo(p *identity.Patient) map[string]interface{} {
	return map[string]interface{}{
		"first_name":    p.FirstName,
		"last_name":     p.LastName,
		"email":         p.Email,
		"address":       p.Address,
		"phone_number":  p.Phone,
		"date_of_birth": p.DateOfBirth,
	}
}

func (h *Handler) ownPatient(c echo.Context) (*identity.Patient, error) {
	p, err := h.people.GetPatient(c.Request().Context(), auth.FromEcho(c).ProfileID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return p, err
}

func (h *Handler) BillingForm(c echo.Context) error {
	p, err := h.ownPatient(c)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "patient_billing", map[string]interface{}{
		"current_info": currentInfo(p),
	})
}

func (h *Handler) UpdateBilling(c echo.Context) error {
	p, err := h.ownPatient(c)
	if err != nil {
		return err
	}
	var form identity.PersonForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.people.UpdatePatient(c.Request().Context(), p.ID, form, true); err != nil {
		return web.RenderFormError(c, "patient_billing", map[string]interface{}{
			"current_info": currentInfo(p),
		}, err)
	}
	return web.RedirectWithFlash(c, billingPath, web.LevelSuccess, "Billing information updated successfully.")
}

// -- Pharmacy --

func (h *Handler) FindPharmacyForm(c echo.Context) error {
	p, err := h.ownPatient(c)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "find_pharmacy", map[string]interface{}{
		"form": map[string]string{"address": p.Address},
	})
}

// FindPharmacy echoes the searched address back; the page looks pharmacies
// up client-side.
func (h *Handler) FindPharmacy(c echo.Context) error {
	address := strings.TrimSpace(c.FormValue("address"))
	if address == "" {
		return web.RenderInvalid(c, "find_pharmacy", nil, fieldRequired("address"))
	}
	return web.Render(c, http.StatusOK, "find_pharmacy", map[string]interface{}{
		"form":    map[string]string{"address": address},
		"results": map[string]string{"address": address},
	})
}

// -- Medical --

// MedicalPatientDetail shows an assigned patient with their reports and
// prescriptions.
func (h *Handler) MedicalPatientDetail(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := web.UUIDParam(c, "id")
	if err != nil {
		return auth.DenyTo(c, patientsPath, "Patient not found or not associated with you.")
	}
	patient, err := h.careTeam.AssignedPatient(ctx, auth.FromEcho(c).ProfileID, id)
	if errors.Is(err, careteam.ErrNotAssigned) {
		return auth.DenyTo(c, patientsPath, "Patient not found or not associated with you.")
	}
	if err != nil {
		return err
	}
	reports, err := h.records.ReportsForPatient(ctx, patient.ID)
	if err != nil {
		return err
	}
	prescriptions, err := h.records.PrescriptionsForPatient(ctx, patient.ID)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "medical_patient_detail", map[string]interface{}{
		"patient":       patient,
		"reports":       reports,
		"prescriptions": prescriptions,
	})
}
