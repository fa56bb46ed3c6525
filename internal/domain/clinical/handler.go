package clinical

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/textgen"
	"github.com/medcore/hospital/internal/platform/web"
	"github.com/medcore/hospital/pkg/pagination"
)

const medicalDashboardPath = "/dashboard/medical/"

// DescriptionRecorder counts drug description requests by outcome.
type DescriptionRecorder interface {
	DrugDescription(outcome string)
}

type Handler struct {
	svc       *Service
	gate      *auth.Gate
	describer textgen.Describer
	metrics   DescriptionRecorder
	logger    zerolog.Logger
	debug     bool
}

// NewHandler wires the clinical pages. With debug set, a failed drug
// description also reports the upstream error to the caller.
func NewHandler(svc *Service, gate *auth.Gate, describer textgen.Describer, metrics DescriptionRecorder, logger zerolog.Logger, debug bool) *Handler {
	return &Handler{svc: svc, gate: gate, describer: describer, metrics: metrics, logger: logger, debug: debug}
}

// RegisterMedicalRoutes mounts record authoring on the medical portal group.
func (h *Handler) RegisterMedicalRoutes(medical *echo.Group) {
	newRx := h.gate.Require(auth.KindPrescription, auth.ActCreate, "Only Medical Professionals can create prescriptions.")
	newReport := h.gate.Require(auth.KindReport, auth.ActCreate, "Only medical professionals can create reports.")
	reports := h.gate.Require(auth.KindReport, auth.ActList, "Only medical professionals can view this page.")
	newResult := h.gate.Require(auth.KindTestResult, auth.ActCreate, "Only medical professionals can record test results.")
	results := h.gate.Require(auth.KindTestResult, auth.ActList, "Only medical professionals can view this page.")

	medical.GET("/new_prescription/", h.NewPrescriptionForm, newRx)
	medical.POST("/new_prescription/", h.CreatePrescription, newRx)
	medical.GET("/new_report/", h.NewReportForm, newReport)
	medical.POST("/new_report/", h.CreateReport, newReport)
	medical.GET("/reports/", h.ProviderReports, reports)
	medical.GET("/new_test_result/", h.NewTestResultForm, newResult)
	medical.POST("/new_test_result/", h.CreateTestResult, newResult)
	medical.GET("/test_results/", h.ProviderTestResults, results)
}

// RegisterPatientRoutes mounts the patient's own record lists.
func (h *Handler) RegisterPatientRoutes(patient *echo.Group) {
	patient.GET("/prescriptions/", h.PatientPrescriptions,
		h.gate.Require(auth.KindPrescription, auth.ActList, "Only patients can view prescriptions."))
	patient.GET("/reports/", h.PatientReports,
		h.gate.Require(auth.KindReport, auth.ActList, "Only patients can view their reports."))
	patient.GET("/test_results/", h.PatientTestResults,
		h.gate.Require(auth.KindTestResult, auth.ActList, "Only patients can view their test results."))
}

// RegisterDashboardRoutes mounts the pages shared by every role under
// /dashboard.
func (h *Handler) RegisterDashboardRoutes(dashboard *echo.Group) {
	dashboard.GET("/report/:id/", h.ReportDetail)
	dashboard.GET("/api/generate-description/", h.GenerateDescription,
		h.gate.Require(auth.KindDrugDescription, auth.ActView, "Only Medical Professionals can generate drug descriptions."))
}

func (h *Handler) RegisterAdminRoutes(admin *echo.Group) {
	admin.GET("/reports/", h.AdminReports,
		h.gate.Require(auth.KindReport, auth.ActList, "Only administrators can view reports."))
}

// -- Prescriptions --

func (h *Handler) NewPrescriptionForm(c echo.Context) error {
	return web.Render(c, http.StatusOK, "medical_new_prescription", nil)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var form PrescriptionForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	_, err := h.svc.CreatePrescription(c.Request().Context(), auth.FromEcho(c).ProfileID, form)
	if err != nil {
		web.AddFlash(c, web.LevelError, "There was a problem creating the prescription. Please correct the errors below.")
		return web.RenderFormError(c, "medical_new_prescription", nil, err)
	}
	return web.RedirectWithFlash(c, medicalDashboardPath, web.LevelSuccess, "Prescription created successfully!")
}

func (h *Handler) PatientPrescriptions(c echo.Context) error {
	items, err := h.svc.PrescriptionsForPatient(c.Request().Context(), auth.FromEcho(c).ProfileID)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "patient_prescriptions", map[string]interface{}{
		"prescriptions": items,
	})
}

// -- Reports --

// pickerData loads the patient picker shared by the report and test result
// forms.
func (h *Handler) pickerData(c echo.Context) (map[string]interface{}, error) {
	candidates, err := h.svc.ReportCandidates(c.Request().Context(), auth.FromEcho(c).ProfileID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"patients": candidates}, nil
}

func (h *Handler) NewReportForm(c echo.Context) error {
	data, err := h.pickerData(c)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "medical_new_report", data)
}

func (h *Handler) CreateReport(c echo.Context) error {
	var form ReportForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	_, err := h.svc.CreateReport(c.Request().Context(), auth.FromEcho(c).ProfileID, form)
	if err != nil {
		data, derr := h.pickerData(c)
		if derr != nil {
			return derr
		}
		web.AddFlash(c, web.LevelError, "There was a problem creating the report.")
		return web.RenderFormError(c, "medical_new_report", data, err)
	}
	return web.RedirectWithFlash(c, medicalDashboardPath, web.LevelSuccess, "Report created successfully!")
}

func (h *Handler) ProviderReports(c echo.Context) error {
	items, err := h.svc.ReportsByProvider(c.Request().Context(), auth.FromEcho(c).ProfileID)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "medical_reports", map[string]interface{}{"reports": items})
}

func (h *Handler) PatientReports(c echo.Context) error {
	items, err := h.svc.ReportsForPatient(c.Request().Context(), auth.FromEcho(c).ProfileID)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "patient_reports", map[string]interface{}{"reports": items})
}

func (h *Handler) AdminReports(c echo.Context) error {
	page := pagination.FromContext(c)
	items, total, err := h.svc.ListReports(c.Request().Context(), page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "admin_reports", pagination.NewResponse(items, total, page))
}

// ReportDetail shows a report to its patient, its author or an
// administrator.
func (h *Handler) ReportDetail(c echo.Context) error {
	id, err := web.UUIDParam(c, "id")
	if err != nil {
		return auth.DenyTo(c, "/dashboard/", "Report not found.")
	}
	r, err := h.svc.GetReport(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return auth.DenyTo(c, "/dashboard/", "Report not found.")
	}
	if err != nil {
		return err
	}
	target := auth.Target{Kind: auth.KindReport, PatientID: r.PatientID, ProviderID: r.ProviderID}
	if !h.gate.Authorize(auth.FromEcho(c), auth.ActView, target) {
		return auth.DenyTo(c, "/dashboard/", "You don't have permission to view this report.")
	}
	return web.Render(c, http.StatusOK, "report_detail", map[string]interface{}{"report": r})
}

// -- Test results --

func (h *Handler) NewTestResultForm(c echo.Context) error {
	data, err := h.pickerData(c)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "medical_new_test_result", data)
}

func (h *Handler) CreateTestResult(c echo.Context) error {
	var form TestResultForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	_, err := h.svc.CreateTestResult(c.Request().Context(), auth.FromEcho(c).ProfileID, form)
	if err != nil {
		data, derr := h.pickerData(c)
		if derr != nil {
			return derr
		}
		web.AddFlash(c, web.LevelError, "There was a problem recording the test result.")
		return web.RenderFormError(c, "medical_new_test_result", data, err)
	}
	return web.RedirectWithFlash(c, medicalDashboardPath, web.LevelSuccess, "Test result recorded successfully!")
}

func (h *Handler) ProviderTestResults(c echo.Context) error {
	items, err := h.svc.TestResultsByProvider(c.Request().Context(), auth.FromEcho(c).ProfileID)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "medical_test_results", map[string]interface{}{"test_results": items})
}

func (h *Handler) PatientTestResults(c echo.Context) error {
	items, err := h.svc.TestResultsForPatient(c.Request().Context(), auth.FromEcho(c).ProfileID)
	if err != nil {
		return err
	}
	return web.Render(c, http.StatusOK, "patient_test_results", map[string]interface{}{"test_results": items})
}

// -- Drug description --

type descriptionResponse struct {
	Description string            `json:"description"`
	Debug       map[string]string `json:"debug,omitempty"`
}

// GenerateDescription answers 400 without a medication and 200 otherwise;
// when the model fails the body carries the fallback description.
func (h *Handler) GenerateDescription(c echo.Context) error {
	medication := strings.TrimSpace(c.QueryParam("medication"))
	if medication == "" {
		h.metrics.DrugDescription("missing")
		h.logger.Warn().Msg("no medication provided in request")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No medication provided."})
	}

	description, err := h.describer.DescribeMedication(c.Request().Context(), medication)
	if err == nil {
		h.metrics.DrugDescription("generated")
		h.logger.Debug().Str("medication", medication).Msg("generated drug description")
		return c.JSON(http.StatusOK, descriptionResponse{Description: description})
	}

	h.metrics.DrugDescription("fallback")
	h.logger.Error().Err(err).Str("medication", medication).Msg("drug description failed")
	resp := descriptionResponse{Description: textgen.Fallback(medication)}
	if h.debug {
		resp.Debug = map[string]string{"exception": err.Error()}
	}
	return c.JSON(http.StatusOK, resp)
}
