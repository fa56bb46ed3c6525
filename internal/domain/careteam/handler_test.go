package careteam

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/web"
)

func newTestHandler(t *testing.T) (*Handler, *mockAssignmentRepo, *auth.Principal, *echo.Echo) {
	t.Helper()
	gate, err := auth.NewGate()
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	svc, repo := newTestService()
	doctor := &auth.Principal{IdentityID: uuid.New(), Username: "doc", Role: auth.RoleMedical, ProfileID: uuid.New()}
	return NewHandler(svc, gate), repo, doctor, echo.New()
}

func asPrincipal(req *http.Request, p *auth.Principal) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func TestHandler_AddPatient(t *testing.T) {
	h, repo, doctor, e := newTestHandler(t)
	p := repo.addPatient("Ann")
	p.LastName = "Lee"

	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(postForm("/dashboard/medical/new_patient/", url.Values{"patient": {p.ID.String()}}), doctor), rec)
	if err := h.AddPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != patientsPath {
		t.Fatalf("expected redirect to patient list, got %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
	if !repo.assigned[pair{doctor.ProfileID, p.ID}] {
		t.Error("expected assignment to be stored")
	}

	follow := httptest.NewRequest(http.MethodGet, patientsPath, nil)
	for _, ck := range rec.Result().Cookies() {
		follow.AddCookie(ck)
	}
	msgs := web.PopFlashes(e.NewContext(follow, httptest.NewRecorder()))
	if len(msgs) != 1 || msgs[0].Text != "Patient Ann Lee added successfully!" {
		t.Errorf("unexpected flash %+v", msgs)
	}
}

func TestHandler_AddPatient_AlreadyAssigned(t *testing.T) {
	h, repo, doctor, e := newTestHandler(t)
	p := repo.addPatient("Ann")
	repo.assigned[pair{doctor.ProfileID, p.ID}] = true

	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(postForm("/dashboard/medical/new_patient/", url.Values{"patient": {p.ID.String()}}), doctor), rec)
	if err := h.AddPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var page web.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Errors == nil || page.Errors.Fields["patient"][0] != msgInvalidChoice {
		t.Errorf("expected invalid choice error, got %+v", page.Errors)
	}
}

func TestHandler_ListPatients(t *testing.T) {
	h, repo, doctor, e := newTestHandler(t)
	mine := repo.addPatient("Mine")
	repo.addPatient("Theirs")
	repo.assigned[pair{doctor.ProfileID, mine.ID}] = true

	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(httptest.NewRequest(http.MethodGet, patientsPath, nil), doctor), rec)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Data struct {
			Patients []map[string]interface{} `json:"patients"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Data.Patients) != 1 || page.Data.Patients[0]["id"] != mine.ID.String() {
		t.Errorf("expected only the assigned patient, got %+v", page.Data.Patients)
	}
}

func TestHandler_RemovePatient_NotAssigned(t *testing.T) {
	h, repo, doctor, e := newTestHandler(t)
	p := repo.addPatient("Ann")

	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(httptest.NewRequest(http.MethodPost, "/", nil), doctor), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.RemovePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != patientsPath {
		t.Errorf("expected redirect back to list, got %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
}
