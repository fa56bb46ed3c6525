package auth

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"patient", RolePatient},
		{"Patient", RolePatient},
		{"medical", RoleMedical},
		{"provider", RoleMedical},
		{"doctor", RoleMedical},
		{"admin", RoleAdmin},
		{" administrator ", RoleAdmin},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if err != nil {
			t.Errorf("ParseRole(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRole_Invalid(t *testing.T) {
	for _, in := range []string{"", "nurse", "root", "patients"} {
		if _, err := ParseRole(in); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("ParseRole(%q) expected ErrInvalidRole, got %v", in, err)
		}
	}
}

func TestRolePaths(t *testing.T) {
	if RolePatient.DashboardPath() != "/dashboard/patient/" {
		t.Errorf("unexpected patient dashboard %q", RolePatient.DashboardPath())
	}
	if RoleNone.DashboardPath() != "/" {
		t.Errorf("role-less principal should land on /, got %q", RoleNone.DashboardPath())
	}
	if RoleMedical.LoginPath() != "/login/medical/" {
		t.Errorf("unexpected medical login %q", RoleMedical.LoginPath())
	}
	if RoleAdmin.Audience() != "Administrators" {
		t.Errorf("unexpected admin audience %q", RoleAdmin.Audience())
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("hash must not equal the password")
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("expected password to match its hash")
	}
	if CheckPassword(hash, "wrong horse") {
		t.Error("expected wrong password to be rejected")
	}
	if CheckPassword("not-a-hash", "correct horse") {
		t.Error("malformed hash must never match")
	}
}
