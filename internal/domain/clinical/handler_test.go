package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/web"
)

type fakeDescriber struct {
	text string
	err  error
}

func (f fakeDescriber) DescribeMedication(context.Context, string) (string, error) {
	return f.text, f.err
}

type outcomeCounter map[string]int

func (o outcomeCounter) DrugDescription(outcome string) { o[outcome]++ }

func newTestHandler(t *testing.T, d fakeDescriber, debug bool) (*Handler, *Service, *mockPicker, outcomeCounter, *echo.Echo) {
	t.Helper()
	gate, err := auth.NewGate()
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	svc, _, picker := newTestService()
	counter := outcomeCounter{}
	return NewHandler(svc, gate, d, counter, zerolog.Nop(), debug), svc, picker, counter, echo.New()
}

func principal(role auth.Role, profile uuid.UUID) *auth.Principal {
	return &auth.Principal{IdentityID: uuid.New(), Username: string(role), Role: role, ProfileID: profile}
}

func withPrincipal(req *http.Request, p *auth.Principal) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func flashes(t *testing.T, e *echo.Echo, rec *httptest.ResponseRecorder) []web.Message {
	t.Helper()
	follow := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		follow.AddCookie(c)
	}
	return web.PopFlashes(e.NewContext(follow, httptest.NewRecorder()))
}

func TestHandler_ReportDetail_Visibility(t *testing.T) {
	h, svc, picker, _, e := newTestHandler(t, fakeDescriber{}, false)
	patient := picker.addPatient("pat")
	author := uuid.New()
	r, err := svc.CreateReport(context.Background(), author, ReportForm{Patient: patient.String(), Title: "t", Summary: "s"})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}

	tests := []struct {
		name    string
		who     *auth.Principal
		allowed bool
	}{
		{"patient", principal(auth.RolePatient, patient), true},
		{"author", principal(auth.RoleMedical, author), true},
		{"admin", principal(auth.RoleAdmin, uuid.New()), true},
		{"other patient", principal(auth.RolePatient, uuid.New()), false},
		{"other provider", principal(auth.RoleMedical, uuid.New()), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), tt.who), rec)
			c.SetParamNames("id")
			c.SetParamValues(r.ID.String())
			if err := h.ReportDetail(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.allowed {
				if rec.Code != http.StatusOK {
					t.Errorf("expected 200, got %d", rec.Code)
				}
				return
			}
			if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != "/dashboard/" {
				t.Fatalf("expected redirect to dashboard, got %d", rec.Code)
			}
			msgs := flashes(t, e, rec)
			if len(msgs) != 1 || msgs[0].Text != "You don't have permission to view this report." {
				t.Errorf("unexpected flash %+v", msgs)
			}
		})
	}
}

func TestHandler_ReportDetail_Missing(t *testing.T) {
	h, _, _, _, e := newTestHandler(t, fakeDescriber{}, false)
	rec := httptest.NewRecorder()
	c := e.NewContext(withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), principal(auth.RoleAdmin, uuid.New())), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.ReportDetail(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := flashes(t, e, rec)
	if rec.Code != http.StatusSeeOther || len(msgs) != 1 || msgs[0].Text != "Report not found." {
		t.Errorf("expected not-found redirect, got %d %+v", rec.Code, msgs)
	}
}

func TestHandler_CreateReport_Invalid(t *testing.T) {
	h, _, _, _, e := newTestHandler(t, fakeDescriber{}, false)
	form := url.Values{"patient": {uuid.New().String()}, "title": {"t"}, "summary": {"s"}}
	req := httptest.NewRequest(http.MethodPost, "/dashboard/medical/new_report/", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	c := e.NewContext(withPrincipal(req, principal(auth.RoleMedical, uuid.New())), rec)

	if err := h.CreateReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var page web.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Errors.Fields["patient"][0] != msgInvalidChoice || page.Input["title"] != "t" {
		t.Errorf("unexpected page %+v", page)
	}
}

func describe(t *testing.T, h *Handler, e *echo.Echo, query string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/dashboard/api/generate-description/"+query, nil), rec)
	if err := h.GenerateDescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec, body
}

func TestHandler_GenerateDescription_Missing(t *testing.T) {
	h, _, _, counter, e := newTestHandler(t, fakeDescriber{text: "unused"}, false)
	for _, q := range []string{"", "?medication=", "?medication=%20"} {
		rec, body := describe(t, h, e, q)
		if rec.Code != http.StatusBadRequest || body["error"] != "No medication provided." {
			t.Errorf("%q: expected 400, got %d %v", q, rec.Code, body)
		}
	}
	if counter["missing"] != 3 {
		t.Errorf("expected missing counted, got %v", counter)
	}
}

func TestHandler_GenerateDescription_Generated(t *testing.T) {
	h, _, _, counter, e := newTestHandler(t, fakeDescriber{text: "Ibuprofen is an NSAID."}, false)
	rec, body := describe(t, h, e, "?medication=Ibuprofen")
	if rec.Code != http.StatusOK || body["description"] != "Ibuprofen is an NSAID." {
		t.Errorf("unexpected response %d %v", rec.Code, body)
	}
	if counter["generated"] != 1 {
		t.Errorf("expected generated counted, got %v", counter)
	}
}

func TestHandler_GenerateDescription_Fallback(t *testing.T) {
	upstream := errors.New("upstream timeout")

	h, _, _, _, e := newTestHandler(t, fakeDescriber{err: upstream}, false)
	rec, body := describe(t, h, e, "?medication=Aspirin")
	if rec.Code != http.StatusOK || body["description"] != "Aspirin is a medication used to treat specific conditions." {
		t.Errorf("unexpected response %d %v", rec.Code, body)
	}
	if _, ok := body["debug"]; ok {
		t.Errorf("debug details must be hidden outside debug mode")
	}

	h, _, _, _, e = newTestHandler(t, fakeDescriber{err: upstream}, true)
	_, body = describe(t, h, e, "?medication=Aspirin")
	debug, ok := body["debug"].(map[string]interface{})
	if !ok || debug["exception"] != "upstream timeout" {
		t.Errorf("expected exception in debug mode, got %v", body)
	}
}
