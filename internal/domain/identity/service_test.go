package identity

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/pkg/formerr"
)

// -- Mock Repositories --

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockIdentityRepo struct {
	items map[uuid.UUID]*Identity
}

func newMockIdentityRepo() *mockIdentityRepo {
	return &mockIdentityRepo{items: make(map[uuid.UUID]*Identity)}
}

func (m *mockIdentityRepo) Create(_ context.Context, i *Identity) error {
	for _, existing := range m.items {
		if existing.Username == i.Username {
			return ErrUsernameTaken
		}
	}
	i.ID = uuid.New()
	cp := *i
	m.items[i.ID] = &cp
	return nil
}

func (m *mockIdentityRepo) GetByID(_ context.Context, id uuid.UUID) (*Identity, error) {
	i, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *mockIdentityRepo) GetByUsername(_ context.Context, username string) (*Identity, error) {
	for _, i := range m.items {
		if i.Username == username {
			cp := *i
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockIdentityRepo) Update(_ context.Context, i *Identity) error {
	existing, ok := m.items[i.ID]
	if !ok {
		return ErrNotFound
	}
	existing.FirstName, existing.LastName, existing.Email = i.FirstName, i.LastName, i.Email
	return nil
}

func (m *mockIdentityRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockIdentityRepo) ClaimRole(_ context.Context, id uuid.UUID, role auth.Role) error {
	i, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	if i.Role != auth.RoleNone {
		return ErrProfileExists
	}
	i.Role = role
	return nil
}

type mockPatientRepo struct {
	items map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{items: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.items {
		if existing.IdentityID == p.IdentityID {
			return ErrProfileExists
		}
	}
	p.ID = uuid.New()
	m.items[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPatientRepo) GetByIdentity(_ context.Context, identityID uuid.UUID) (*Patient, error) {
	for _, p := range m.items {
		if p.IdentityID == identityID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.items[p.ID] = p
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.items {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, len(result), nil
}

type mockProviderRepo struct {
	items map[uuid.UUID]*MedicalProfessional
}

func newMockProviderRepo() *mockProviderRepo {
	return &mockProviderRepo{items: make(map[uuid.UUID]*MedicalProfessional)}
}

func (m *mockProviderRepo) Create(_ context.Context, mp *MedicalProfessional) error {
	for _, existing := range m.items {
		if existing.IdentityID == mp.IdentityID {
			return ErrProfileExists
		}
	}
	mp.ID = uuid.New()
	m.items[mp.ID] = mp
	return nil
}

func (m *mockProviderRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalProfessional, error) {
	mp, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return mp, nil
}

func (m *mockProviderRepo) GetByIdentity(_ context.Context, identityID uuid.UUID) (*MedicalProfessional, error) {
	for _, mp := range m.items {
		if mp.IdentityID == identityID {
			return mp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockProviderRepo) Update(_ context.Context, mp *MedicalProfessional) error {
	m.items[mp.ID] = mp
	return nil
}

func (m *mockProviderRepo) List(_ context.Context, limit, offset int) ([]*MedicalProfessional, int, error) {
	var result []*MedicalProfessional
	for _, mp := range m.items {
		result = append(result, mp)
	}
	return result, len(result), nil
}

type mockAdminRepo struct {
	items map[uuid.UUID]*FacilityAdministrator
}

func newMockAdminRepo() *mockAdminRepo {
	return &mockAdminRepo{items: make(map[uuid.UUID]*FacilityAdministrator)}
}

func (m *mockAdminRepo) Create(_ context.Context, a *FacilityAdministrator) error {
	for _, existing := range m.items {
		if existing.IdentityID == a.IdentityID {
			return ErrProfileExists
		}
	}
	a.ID = uuid.New()
	m.items[a.ID] = a
	return nil
}

func (m *mockAdminRepo) GetByIdentity(_ context.Context, identityID uuid.UUID) (*FacilityAdministrator, error) {
	for _, a := range m.items {
		if a.IdentityID == identityID {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

type testRepos struct {
	identities *mockIdentityRepo
	patients   *mockPatientRepo
	providers  *mockProviderRepo
	admins     *mockAdminRepo
}

func newTestService() (*Service, *testRepos) {
	r := &testRepos{
		identities: newMockIdentityRepo(),
		patients:   newMockPatientRepo(),
		providers:  newMockProviderRepo(),
		admins:     newMockAdminRepo(),
	}
	svc := NewService(passthroughTx{}, r.identities, r.patients, r.providers, r.admins, NewPhoneNormalizer("US"))
	return svc, r
}

func validSignup(username string) SignupForm {
	return SignupForm{
		Username:  username,
		Email:     username + "@example.com",
		FirstName: "Jane",
		LastName:  "Doe",
		Password1: "correct-horse",
		Password2: "correct-horse",
	}
}

func mustIdentity(t *testing.T, r *testRepos, username string) *Identity {
	t.Helper()
	ident := &Identity{Username: username, PasswordHash: "x"}
	if err := r.identities.Create(context.Background(), ident); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return ident
}

// -- Provisioning --

func TestProvision_Patient(t *testing.T) {
	svc, r := newTestService()
	ident := mustIdentity(t, r, "jdoe")

	profile, err := svc.Provisioner().Provision(context.Background(), ident.ID, "patient", ProfileAttributes{Address: "1 Main St"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Role != auth.RolePatient || profile.Patient == nil {
		t.Fatalf("expected patient profile, got %+v", profile)
	}
	if profile.Patient.Address != "1 Main St" {
		t.Errorf("expected address copied, got %q", profile.Patient.Address)
	}
	if r.identities.items[ident.ID].Role != auth.RolePatient {
		t.Errorf("expected identity role to be recorded")
	}
}

func TestProvision_Aliases(t *testing.T) {
	for alias, want := range map[string]auth.Role{"provider": auth.RoleMedical, "doctor": auth.RoleMedical, "administrator": auth.RoleAdmin} {
		svc, r := newTestService()
		ident := mustIdentity(t, r, "u-"+alias)
		profile, err := svc.Provisioner().Provision(context.Background(), ident.ID, alias, ProfileAttributes{Specialization: "Cardiology", FacilityName: "General"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", alias, err)
		}
		if profile.Role != want {
			t.Errorf("%s: expected %s, got %s", alias, want, profile.Role)
		}
	}
}

func TestProvision_SecondProfileFails(t *testing.T) {
	svc, r := newTestService()
	ident := mustIdentity(t, r, "dual")
	ctx := context.Background()

	first, err := svc.Provisioner().Provision(ctx, ident.ID, "medical", ProfileAttributes{Specialization: "Oncology"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Provisioner().Provision(ctx, ident.ID, "patient", ProfileAttributes{})
	if !errors.Is(err, ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}
	if len(r.patients.items) != 0 {
		t.Errorf("expected no patient profile to be created")
	}
	kept, err := r.providers.GetByIdentity(ctx, ident.ID)
	if err != nil || kept.ID != first.Provider.ID || kept.Specialization != "Oncology" {
		t.Errorf("expected first profile untouched, got %+v (%v)", kept, err)
	}
	if r.identities.items[ident.ID].Role != auth.RoleMedical {
		t.Errorf("expected role to stay medical")
	}
}

func TestProvision_InvalidRole(t *testing.T) {
	svc, r := newTestService()
	ident := mustIdentity(t, r, "nurse")

	_, err := svc.Provisioner().Provision(context.Background(), ident.ID, "nurse", ProfileAttributes{})
	if !errors.Is(err, auth.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if r.identities.items[ident.ID].Role != auth.RoleNone {
		t.Errorf("expected identity to stay without role")
	}
}

func TestProvision_UnknownIdentity(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Provisioner().Provision(context.Background(), uuid.New(), "patient", ProfileAttributes{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProvision_NormalizesPhone(t *testing.T) {
	svc, r := newTestService()
	ident := mustIdentity(t, r, "caller")
	profile, err := svc.Provisioner().Provision(context.Background(), ident.ID, "patient", ProfileAttributes{Phone: "(650) 253-0000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Patient.Phone != "+16502530000" {
		t.Errorf("expected E.164 phone, got %q", profile.Patient.Phone)
	}
}

// -- Signup --

func TestSignup_Patient(t *testing.T) {
	svc, r := newTestService()
	f := validSignup("newpatient")
	f.DateOfBirth = "1990-04-01"

	ident, profile, err := svc.Signup(context.Background(), auth.RolePatient, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.Role != auth.RolePatient || profile.Patient == nil {
		t.Fatalf("expected patient signup, got %+v %+v", ident, profile)
	}
	if profile.Patient.DateOfBirth == nil || profile.Patient.DateOfBirth.Year() != 1990 {
		t.Errorf("expected date of birth, got %v", profile.Patient.DateOfBirth)
	}
	stored := r.identities.items[ident.ID]
	if stored.PasswordHash == f.Password1 || !auth.CheckPassword(stored.PasswordHash, f.Password1) {
		t.Errorf("expected a bcrypt hash of the password")
	}
}

func TestSignup_ValidationErrors(t *testing.T) {
	svc, _ := newTestService()
	f := validSignup("bad user")
	f.Password2 = "different"
	f.Email = "nope"
	f.Phone = "12"

	_, _, err := svc.Signup(context.Background(), auth.RoleMedical, f)
	fe, ok := formerr.As(err)
	if !ok {
		t.Fatalf("expected form errors, got %v", err)
	}
	for _, field := range []string{"username", "password2", "email", "phone_number", "specialization"} {
		if len(fe.Fields[field]) == 0 {
			t.Errorf("expected error on %s, got %v", field, fe)
		}
	}
}

func TestSignup_ShortPassword(t *testing.T) {
	svc, _ := newTestService()
	f := validSignup("shorty")
	f.Password1, f.Password2 = "abc", "abc"

	_, _, err := svc.Signup(context.Background(), auth.RolePatient, f)
	fe, ok := formerr.As(err)
	if !ok || len(fe.Fields["password2"]) == 0 {
		t.Fatalf("expected password2 error, got %v", err)
	}
}

func TestSignup_DuplicateUsername(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, _, err := svc.Signup(ctx, auth.RolePatient, validSignup("taken")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, err := svc.Signup(ctx, auth.RolePatient, validSignup("taken"))
	fe, ok := formerr.As(err)
	if !ok || fe.Fields["username"][0] != msgUsernameTaken {
		t.Fatalf("expected username taken, got %v", err)
	}
}

func TestSignup_AdminRequiresFacility(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Signup(context.Background(), auth.RoleAdmin, validSignup("boss"))
	fe, ok := formerr.As(err)
	if !ok || len(fe.Fields["facility_name"]) == 0 {
		t.Fatalf("expected facility_name error, got %v", err)
	}
}

// -- Authentication --

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	f := validSignup("doc")
	f.Specialization = "Neurology"
	_, profile, err := svc.Signup(ctx, auth.RoleMedical, f)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	p, err := svc.Authenticate(ctx, "doc", "correct-horse", auth.RoleMedical)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Role != auth.RoleMedical || p.ProfileID != profile.ID() {
		t.Errorf("unexpected principal %+v", p)
	}

	if _, err := svc.Authenticate(ctx, "doc", "correct-horse", auth.RoleNone); err != nil {
		t.Errorf("expected generic login to accept any role, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "doc", "correct-horse", auth.RolePatient); !errors.Is(err, ErrWrongRole) {
		t.Errorf("expected ErrWrongRole, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "doc", "wrong-password", auth.RoleMedical); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ghost", "whatever", auth.RoleMedical); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestResolvePrincipal_NoRole(t *testing.T) {
	svc, r := newTestService()
	ident := mustIdentity(t, r, "staff")
	p, err := svc.ResolvePrincipal(context.Background(), ident)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Role != auth.RoleNone || p.ProfileID != uuid.Nil {
		t.Errorf("expected role-less principal, got %+v", p)
	}
}

// -- Directory --

func TestUpdatePatient_Billing(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, profile, err := svc.Signup(ctx, auth.RolePatient, validSignup("payer"))
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	_, err = svc.UpdatePatient(ctx, profile.Patient.ID, PersonForm{Phone: "555-1234"}, true)
	fe, ok := formerr.As(err)
	if !ok || fe.Fields["phone_number"][0] != msgShortPhone {
		t.Fatalf("expected short phone error, got %v", err)
	}

	p, err := svc.UpdatePatient(ctx, profile.Patient.ID, PersonForm{
		FirstName: "Janet", LastName: "Doe", Email: "janet@example.com",
		Address: "2 Side St", Phone: "650-253-0000",
	}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Address != "2 Side St" || p.Phone != "+16502530000" || p.FirstName != "Janet" {
		t.Errorf("unexpected patient %+v", p)
	}
}

func TestDeletePatient_RemovesIdentity(t *testing.T) {
	svc, r := newTestService()
	ctx := context.Background()
	ident, profile, err := svc.Signup(ctx, auth.RolePatient, validSignup("leaving"))
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.DeletePatient(ctx, profile.Patient.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.identities.items[ident.ID]; ok {
		t.Errorf("expected identity to be deleted")
	}
	if _, err := svc.DeletePatient(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPhoneNormalizer(t *testing.T) {
	n := NewPhoneNormalizer("us")
	if got, err := n.Normalize(""); err != nil || got != "" {
		t.Errorf("expected blank to pass, got %q %v", got, err)
	}
	if got, err := n.Normalize("+44 20 7946 0958"); err != nil || got != "+442079460958" {
		t.Errorf("expected UK number, got %q %v", got, err)
	}
	if _, err := n.Normalize("12"); !errors.Is(err, ErrInvalidPhone) {
		t.Errorf("expected ErrInvalidPhone, got %v", err)
	}
	if CountDigits("(415) 555-2671") != 10 {
		t.Errorf("expected 10 digits")
	}
}
