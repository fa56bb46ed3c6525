package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/web"
)

func newTestHandler(t *testing.T) (*Handler, *fixture, *echo.Echo) {
	t.Helper()
	gate, err := auth.NewGate()
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	f := newFixture()
	return NewHandler(f.svc, f.people, gate), f, echo.New()
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func asPrincipal(req *http.Request, p *auth.Principal) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func patientPrincipal(id uuid.UUID) *auth.Principal {
	return &auth.Principal{IdentityID: uuid.New(), Username: "pat", Role: auth.RolePatient, ProfileID: id}
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) web.Page {
	t.Helper()
	var page web.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return page
}

func slot(d time.Duration) string {
	return testNow.Add(d).Format(DateTimeLayout)
}

func TestHandler_PatientCreate(t *testing.T) {
	h, f, e := newTestHandler(t)
	form := url.Values{
		"medical_professional": {f.doctor.String()},
		"appointment_date":     {slot(24 * time.Hour)},
		"reason":               {"checkup"},
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(postForm("/dashboard/patient/new_appointment/", form), patientPrincipal(f.patient)), rec)

	if err := h.PatientCreate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != patientDashboardPath {
		t.Fatalf("expected redirect to dashboard, got %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
	if len(f.repo.items) != 1 {
		t.Fatalf("expected one appointment, got %d", len(f.repo.items))
	}
	for _, a := range f.repo.items {
		if a.PatientID != f.patient {
			t.Errorf("patient must come from the session, got %s", a.PatientID)
		}
	}
}

func TestHandler_PatientCreate_Conflict(t *testing.T) {
	h, f, e := newTestHandler(t)
	at := testNow.Add(24 * time.Hour)
	f.book(t, f.people.addPatient("other"), f.doctor, at)

	form := url.Values{
		"medical_professional": {f.doctor.String()},
		"appointment_date":     {at.Format(DateTimeLayout)},
		"reason":               {"checkup"},
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(postForm("/dashboard/patient/new_appointment/", form), patientPrincipal(f.patient)), rec)

	if err := h.PatientCreate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	page := decodePage(t, rec)
	if page.Errors == nil || len(page.Errors.Form) != 1 || page.Errors.Form[0] != "This doctor is not available at that time." {
		t.Errorf("expected conflict message, got %+v", page.Errors)
	}
	if len(page.Messages) != 1 || page.Messages[0].Text != "There was a problem scheduling your appointment." {
		t.Errorf("expected failure flash, got %+v", page.Messages)
	}
	if page.Input["appointment_date"] != at.Format(DateTimeLayout) {
		t.Errorf("expected submitted input echoed, got %v", page.Input)
	}
}

func TestHandler_PatientCreate_PastDate(t *testing.T) {
	h, f, e := newTestHandler(t)
	form := url.Values{
		"medical_professional": {f.doctor.String()},
		"appointment_date":     {slot(-time.Hour)},
		"reason":               {"checkup"},
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(postForm("/", form), patientPrincipal(f.patient)), rec)

	if err := h.PatientCreate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	page := decodePage(t, rec)
	if page.Errors == nil || page.Errors.Fields["appointment_date"][0] != msgNotInFuture {
		t.Errorf("expected future-date error, got %+v", page.Errors)
	}
}

func TestHandler_PatientUpdate_OthersAppointment(t *testing.T) {
	h, f, e := newTestHandler(t)
	other := f.people.addPatient("other")
	a := f.book(t, other, f.doctor, testNow.Add(24*time.Hour))

	form := url.Values{
		"medical_professional": {f.doctor.String()},
		"appointment_date":     {slot(48 * time.Hour)},
		"reason":               {"mine now"},
	}
	c := e.NewContext(asPrincipal(postForm("/", form), patientPrincipal(f.patient)), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.PatientUpdate(c); !web.IsHTTPError(err, http.StatusNotFound) {
		t.Fatalf("expected 404, got %v", err)
	}
	if f.repo.items[a.ID].Reason != "checkup" {
		t.Errorf("appointment must be unchanged")
	}
}

func TestHandler_PatientUpdate(t *testing.T) {
	h, f, e := newTestHandler(t)
	a := f.book(t, f.patient, f.doctor, testNow.Add(24*time.Hour))

	form := url.Values{
		"medical_professional": {f.doctor.String()},
		"appointment_date":     {a.ScheduledAt.Format(DateTimeLayout)},
		"reason":               {"follow-up"},
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(postForm("/", form), patientPrincipal(f.patient)), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.PatientUpdate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(echo.HeaderLocation) != patientAppointmentsPath {
		t.Errorf("expected redirect to appointments, got %q", rec.Header().Get(echo.HeaderLocation))
	}
	if f.repo.items[a.ID].Reason != "follow-up" {
		t.Errorf("expected reason updated")
	}
}

func TestHandler_PatientDelete(t *testing.T) {
	h, f, e := newTestHandler(t)
	a := f.book(t, f.patient, f.doctor, testNow.Add(24*time.Hour))

	get := e.NewContext(asPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), patientPrincipal(f.patient)), httptest.NewRecorder())
	get.SetParamNames("id")
	get.SetParamValues(a.ID.String())
	if err := h.PatientDeleteGet(get); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.repo.items[a.ID]; !ok {
		t.Fatal("GET must not delete")
	}

	rec := httptest.NewRecorder()
	post := e.NewContext(asPrincipal(httptest.NewRequest(http.MethodPost, "/", nil), patientPrincipal(f.patient)), rec)
	post.SetParamNames("id")
	post.SetParamValues(a.ID.String())
	if err := h.PatientDelete(post); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.repo.items[a.ID]; ok {
		t.Error("expected appointment deleted")
	}
	if rec.Header().Get(echo.HeaderLocation) != patientAppointmentsPath {
		t.Errorf("unexpected redirect %q", rec.Header().Get(echo.HeaderLocation))
	}
}

func TestHandler_MedicalCreate(t *testing.T) {
	h, f, e := newTestHandler(t)
	doctor := &auth.Principal{IdentityID: uuid.New(), Username: "doc", Role: auth.RoleMedical, ProfileID: f.doctor}
	form := url.Values{
		"patient":          {f.patient.String()},
		"appointment_date": {slot(24 * time.Hour)},
		"reason":           {"review"},
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(postForm("/dashboard/medical/new_appointment/", form), doctor), rec)

	if err := h.MedicalCreate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(echo.HeaderLocation) != medicalDashboardPath {
		t.Fatalf("expected redirect to medical dashboard, got %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
	for _, a := range f.repo.items {
		if a.ProviderID != f.doctor {
			t.Errorf("provider must come from the session")
		}
	}
}

func TestHandler_AdminList(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.book(t, f.patient, f.doctor, testNow.Add(24*time.Hour))
	admin := &auth.Principal{IdentityID: uuid.New(), Username: "boss", Role: auth.RoleAdmin, ProfileID: uuid.New()}

	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(httptest.NewRequest(http.MethodGet, "/admin/appointments/?page=1", nil), admin), rec)
	if err := h.AdminList(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		View string `json:"view"`
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.View != "admin_appointments" || page.Data.Total != 1 {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestHandler_AdminView(t *testing.T) {
	h, f, e := newTestHandler(t)
	a := f.book(t, f.patient, f.doctor, testNow.Add(24*time.Hour))
	admin := &auth.Principal{IdentityID: uuid.New(), Username: "boss", Role: auth.RoleAdmin, ProfileID: uuid.New()}

	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), admin), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.AdminView(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		View string `json:"view"`
		Data struct {
			Appointment Appointment `json:"appointment"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.View != "admin_view_appointment" || page.Data.Appointment.ID != a.ID {
		t.Errorf("unexpected page %+v", page)
	}

	c = e.NewContext(asPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), admin), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if err := h.AdminView(c); !web.IsHTTPError(err, http.StatusNotFound) {
		t.Errorf("expected 404 for a missing appointment, got %v", err)
	}
}
