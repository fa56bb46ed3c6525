package clinical

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcore/hospital/internal/domain/identity"
	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/db"
	"github.com/medcore/hospital/migrations"
)

func pgFixture(t *testing.T) (*pgxpool.Pool, *identity.Service) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, url, 4, 1)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool, identity.NewService(db.NewTxManager(pool),
		identity.NewIdentityRepoPG(pool), identity.NewPatientRepoPG(pool),
		identity.NewProviderRepoPG(pool), identity.NewAdministratorRepoPG(pool),
		identity.NewPhoneNormalizer("US"))
}

func signupPG(t *testing.T, people *identity.Service, role auth.Role) uuid.UUID {
	t.Helper()
	name := string(role) + uuid.NewString()[:8]
	_, profile, err := people.Signup(context.Background(), role, identity.SignupForm{
		Username:       name,
		Email:          name + "@example.com",
		Password1:      "correct-horse-battery",
		Password2:      "correct-horse-battery",
		Specialization: "Pathology",
	})
	if err != nil {
		t.Fatalf("signup %s: %v", role, err)
	}
	return profile.ID()
}

func TestRecordsPG_DeletionCascade(t *testing.T) {
	pool, people := pgFixture(t)
	ctx := context.Background()
	prescriptions := NewPrescriptionRepoPG(pool)
	reports := NewReportRepoPG(pool)
	results := NewTestResultRepoPG(pool)

	patient := signupPG(t, people, auth.RolePatient)
	doctor := signupPG(t, people, auth.RoleMedical)
	t.Cleanup(func() { _, _ = people.DeletePatient(context.Background(), patient) })

	if err := prescriptions.Create(ctx, &Prescription{PatientID: patient, ProviderID: doctor, MedicationName: "Metformin"}); err != nil {
		t.Fatalf("prescription: %v", err)
	}
	if err := reports.Create(ctx, &Report{PatientID: &patient, ProviderID: &doctor, Title: "Annual"}); err != nil {
		t.Fatalf("report: %v", err)
	}
	result := &TestResult{PatientID: patient, ProviderID: &doctor, TestedAt: time.Now().UTC().Truncate(time.Second), Description: "HbA1c"}
	if err := results.Create(ctx, result); err != nil {
		t.Fatalf("test result: %v", err)
	}

	// Deleting the provider keeps the patient's test result but drops the link.
	if _, err := people.DeleteProvider(ctx, doctor); err != nil {
		t.Fatalf("delete provider: %v", err)
	}
	kept, total, err := results.List(ctx, Filter{PatientID: &patient})
	if err != nil || total != 1 {
		t.Fatalf("expected test result kept, got %d %v", total, err)
	}
	if kept[0].ProviderID != nil {
		t.Errorf("expected provider link nulled, got %v", kept[0].ProviderID)
	}
	if _, n, _ := prescriptions.List(ctx, Filter{PatientID: &patient}); n != 0 {
		t.Errorf("expected provider's prescriptions removed, got %d", n)
	}

	if _, err := people.DeletePatient(ctx, patient); err != nil {
		t.Fatalf("delete patient: %v", err)
	}
	if _, n, _ := results.List(ctx, Filter{PatientID: &patient}); n != 0 {
		t.Errorf("expected patient's test results removed, got %d", n)
	}
	if _, err := people.GetPatient(ctx, patient); !errors.Is(err, identity.ErrNotFound) {
		t.Errorf("expected patient profile removed, got %v", err)
	}
}
