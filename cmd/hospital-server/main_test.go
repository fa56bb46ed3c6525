package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/telemetry"
)

func TestMigrationSource_Embedded(t *testing.T) {
	matches, err := fs.Glob(migrationSource(""), "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected embedded migrations")
	}
}

func TestMigrationSource_Directory(t *testing.T) {
	dir := t.TempDir()
	if _, err := fs.Stat(migrationSource(dir), "001_core.sql"); err == nil {
		t.Error("expected an empty override directory")
	}
}

func TestProvisionFlags_Attributes(t *testing.T) {
	attrs, err := provisionFlags{dateOfBirth: "1990-04-01", specialization: "Cardiology"}.attributes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attrs.DateOfBirth == nil || attrs.DateOfBirth.Year() != 1990 || attrs.Specialization != "Cardiology" {
		t.Errorf("unexpected attributes %+v", attrs)
	}

	if _, err := (provisionFlags{dateOfBirth: "01/04/1990"}).attributes(); err == nil {
		t.Error("expected error for a malformed date")
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestRegisterOps(t *testing.T) {
	tests := []struct {
		path   string
		pinger fakePinger
		want   int
	}{
		{"/health", fakePinger{}, http.StatusOK},
		{"/health/db", fakePinger{}, http.StatusOK},
		{"/health/db", fakePinger{err: errors.New("down")}, http.StatusServiceUnavailable},
		{"/metrics", fakePinger{}, http.StatusOK},
	}
	for _, tt := range tests {
		e := echo.New()
		registerOps(e, tt.pinger, telemetry.New())
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.want, rec.Code)
		}
	}
}

func TestRouteGroups_RoleSections(t *testing.T) {
	tests := []struct {
		path string
		role auth.Role
		want int
	}{
		{"/dashboard/patient/ping", auth.RolePatient, http.StatusOK},
		{"/dashboard/patient/ping", auth.RoleMedical, http.StatusSeeOther},
		{"/dashboard/medical/ping", auth.RoleMedical, http.StatusOK},
		{"/dashboard/medical/ping", auth.RoleAdmin, http.StatusSeeOther},
		{"/admin/ping", auth.RoleAdmin, http.StatusOK},
		{"/admin/ping", auth.RolePatient, http.StatusSeeOther},
		{"/facility-admin/ping", auth.RoleMedical, http.StatusSeeOther},
	}
	for _, tt := range tests {
		e := echo.New()
		p := &auth.Principal{IdentityID: uuid.New(), Role: tt.role, ProfileID: uuid.New()}
		e.Pre(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), p)))
				return next(c)
			}
		})
		g := newRouteGroups(e)
		ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
		for _, grp := range []*echo.Group{g.patient, g.medical, g.siteAdmin, g.records} {
			grp.GET("/ping", ok)
		}

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s as %s: expected %d, got %d", tt.path, tt.role, tt.want, rec.Code)
		}
	}
}
