package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/pkg/formerr"
)

const (
	msgRequired        = "This field is required."
	msgUsernameTaken   = "A user with that username already exists."
	msgInvalidUsername = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	msgInvalidEmail    = "Enter a valid email address."
	msgInvalidDate     = "Enter a valid date."
	msgInvalidPhone    = "Enter a valid phone number."
	msgPasswordsDiffer = "The two password fields didn't match."
	msgShortPhone      = "Phone number must be at least 10 digits."
)

// dummyHash keeps the cost of a failed lookup close to a failed password
// comparison.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z0SWa3qlfg8hw3yMOlzu7ruy"

type Service struct {
	tx          TxRunner
	identities  IdentityRepository
	patients    PatientRepository
	providers   ProviderRepository
	provisioner *Provisioner
	phones      *PhoneNormalizer
}

func NewService(tx TxRunner, ids IdentityRepository, pats PatientRepository, provs ProviderRepository, admins AdministratorRepository, phones *PhoneNormalizer) *Service {
	return &Service{
		tx:          tx,
		identities:  ids,
		patients:    pats,
		providers:   provs,
		provisioner: NewProvisioner(tx, ids, pats, provs, admins, phones),
		phones:      phones,
	}
}

func (s *Service) Provisioner() *Provisioner { return s.provisioner }

// -- Accounts --

// Signup creates an identity and its role profile in one transaction.
func (s *Service) Signup(ctx context.Context, role auth.Role, f SignupForm) (*Identity, *RoleProfile, error) {
	attrs, errs := s.validateSignup(ctx, role, &f)
	if !errs.Empty() {
		return nil, nil, errs
	}

	hash, err := auth.HashPassword(f.Password1)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	ident := &Identity{
		Username:     f.Username,
		PasswordHash: hash,
		FirstName:    f.FirstName,
		LastName:     f.LastName,
		Email:        f.Email,
	}

	var profile *RoleProfile
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.identities.Create(ctx, ident); err != nil {
			return err
		}
		var err error
		profile, err = s.provisioner.Provision(ctx, ident.ID, string(role), attrs)
		return err
	})
	if errors.Is(err, ErrUsernameTaken) {
		return nil, nil, formerr.Field("username", msgUsernameTaken)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("sign up %s: %w", role, err)
	}
	ident.Role = role
	return ident, profile, nil
}

func (s *Service) validateSignup(ctx context.Context, role auth.Role, f *SignupForm) (ProfileAttributes, *formerr.Errors) {
	errs := new(formerr.Errors)
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.TrimSpace(f.Email)
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)

	switch {
	case f.Username == "":
		errs.Add("username", msgRequired)
	case len(f.Username) > 150 || !validUsername(f.Username):
		errs.Add("username", msgInvalidUsername)
	default:
		if _, err := s.identities.GetByUsername(ctx, f.Username); err == nil {
			errs.Add("username", msgUsernameTaken)
		}
	}
	validateEmail(errs, f.Email)

	switch {
	case f.Password1 == "":
		errs.Add("password1", msgRequired)
	case f.Password2 == "":
		errs.Add("password2", msgRequired)
	case f.Password1 != f.Password2:
		errs.Add("password2", msgPasswordsDiffer)
	case len(f.Password1) < auth.MinPasswordLength:
		errs.Add("password2", fmt.Sprintf("This password is too short. It must contain at least %d characters.", auth.MinPasswordLength))
	case len(f.Password1) > auth.MaxPasswordLength:
		errs.Add("password2", fmt.Sprintf("This password is too long. It must contain at most %d characters.", auth.MaxPasswordLength))
	}

	attrs := ProfileAttributes{Address: strings.TrimSpace(f.Address)}
	attrs.DateOfBirth = parseDate(errs, f.DateOfBirth)
	attrs.Phone = s.normalizePhone(errs, f.Phone)

	switch role {
	case auth.RoleMedical:
		attrs.Specialization = strings.TrimSpace(f.Specialization)
		if attrs.Specialization == "" {
			errs.Add("specialization", msgRequired)
		}
	case auth.RoleAdmin:
		attrs.FacilityName = strings.TrimSpace(f.FacilityName)
		if attrs.FacilityName == "" {
			errs.Add("facility_name", msgRequired)
		}
	}
	return attrs, errs
}

func validUsername(u string) bool {
	for _, r := range u {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("@.+-_", r):
		default:
			return false
		}
	}
	return true
}

func validateEmail(errs *formerr.Errors, email string) {
	if email == "" {
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs.Add("email", msgInvalidEmail)
	}
}

func parseDate(errs *formerr.Errors, raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		errs.Add("date_of_birth", msgInvalidDate)
		return nil
	}
	return &t
}

func (s *Service) normalizePhone(errs *formerr.Errors, raw string) string {
	if s.phones == nil {
		return strings.TrimSpace(raw)
	}
	phone, err := s.phones.Normalize(raw)
	if err != nil {
		errs.Add("phone_number", msgInvalidPhone)
	}
	return phone
}

// Authenticate checks credentials for the login page of role. Valid
// credentials of an identity holding another role yield ErrWrongRole;
// RoleNone accepts any role.
func (s *Service) Authenticate(ctx context.Context, username, password string, role auth.Role) (*auth.Principal, error) {
	ident, err := s.identities.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		auth.CheckPassword(dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up identity: %w", err)
	}
	if !auth.CheckPassword(ident.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if role != auth.RoleNone && ident.Role != role {
		return nil, ErrWrongRole
	}
	return s.ResolvePrincipal(ctx, ident)
}

// ResolvePrincipal fixes the identity's role and profile id for the session.
func (s *Service) ResolvePrincipal(ctx context.Context, ident *Identity) (*auth.Principal, error) {
	profile, err := s.provisioner.Profile(ctx, ident)
	if err != nil {
		return nil, err
	}
	return &auth.Principal{
		IdentityID: ident.ID,
		Username:   ident.Username,
		Role:       ident.Role,
		ProfileID:  profile.ID(),
	}, nil
}

func (s *Service) GetIdentity(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return s.identities.GetByID(ctx, id)
}

func (s *Service) GetIdentityByUsername(ctx context.Context, username string) (*Identity, error) {
	return s.identities.GetByUsername(ctx, username)
}

// -- Patients --

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) CountPatients(ctx context.Context) (int, error) {
	_, total, err := s.patients.List(ctx, 1, 0)
	return total, err
}

// UpdatePatient applies an edit form to the patient and its identity. The
// billing page additionally requires a phone number of at least 10 digits.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, f PersonForm, billing bool) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	errs := new(formerr.Errors)
	f.Email = strings.TrimSpace(f.Email)
	validateEmail(errs, f.Email)
	if billing && CountDigits(f.Phone) < 10 {
		errs.Add("phone_number", msgShortPhone)
	}
	phone := s.normalizePhone(errs, f.Phone)
	dob := p.DateOfBirth
	if !billing {
		dob = parseDate(errs, f.DateOfBirth)
	}
	if !errs.Empty() {
		return nil, errs
	}

	p.FirstName = strings.TrimSpace(f.FirstName)
	p.LastName = strings.TrimSpace(f.LastName)
	p.Email = f.Email
	p.Address = strings.TrimSpace(f.Address)
	p.Phone = phone
	p.DateOfBirth = dob

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.identities.Update(ctx, &Identity{ID: p.IdentityID, FirstName: p.FirstName, LastName: p.LastName, Email: p.Email}); err != nil {
			return err
		}
		return s.patients.Update(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return p, nil
}

// DeletePatient removes the patient's identity; the profile and everything
// it owns follow by cascade.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.identities.Delete(ctx, p.IdentityID); err != nil {
		return nil, fmt.Errorf("delete patient: %w", err)
	}
	return p, nil
}

// -- Medical professionals --

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*MedicalProfessional, error) {
	return s.providers.GetByID(ctx, id)
}

func (s *Service) ListProviders(ctx context.Context, limit, offset int) ([]*MedicalProfessional, int, error) {
	return s.providers.List(ctx, limit, offset)
}

func (s *Service) CountProviders(ctx context.Context) (int, error) {
	_, total, err := s.providers.List(ctx, 1, 0)
	return total, err
}

func (s *Service) UpdateProvider(ctx context.Context, id uuid.UUID, f PersonForm) (*MedicalProfessional, error) {
	m, err := s.providers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	errs := new(formerr.Errors)
	f.Email = strings.TrimSpace(f.Email)
	validateEmail(errs, f.Email)
	specialty := strings.TrimSpace(f.Specialization)
	if specialty == "" {
		errs.Add("specialization", msgRequired)
	}
	phone := s.normalizePhone(errs, f.Phone)
	if !errs.Empty() {
		return nil, errs
	}

	m.FirstName = strings.TrimSpace(f.FirstName)
	m.LastName = strings.TrimSpace(f.LastName)
	m.Email = f.Email
	m.Specialization = specialty
	m.Phone = phone

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.identities.Update(ctx, &Identity{ID: m.IdentityID, FirstName: m.FirstName, LastName: m.LastName, Email: m.Email}); err != nil {
			return err
		}
		return s.providers.Update(ctx, m)
	})
	if err != nil {
		return nil, fmt.Errorf("update medical professional: %w", err)
	}
	return m, nil
}

func (s *Service) DeleteProvider(ctx context.Context, id uuid.UUID) (*MedicalProfessional, error) {
	m, err := s.providers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.identities.Delete(ctx, m.IdentityID); err != nil {
		return nil, fmt.Errorf("delete medical professional: %w", err)
	}
	return m, nil
}
