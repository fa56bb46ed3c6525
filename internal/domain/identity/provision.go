package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/platform/auth"
)

// Provisioner attaches the single role profile an identity may hold.
type Provisioner struct {
	tx         TxRunner
	identities IdentityRepository
	patients   PatientRepository
	providers  ProviderRepository
	admins     AdministratorRepository
	phones     *PhoneNormalizer
}

func NewProvisioner(tx TxRunner, ids IdentityRepository, pats PatientRepository, provs ProviderRepository, admins AdministratorRepository, phones *PhoneNormalizer) *Provisioner {
	return &Provisioner{tx: tx, identities: ids, patients: pats, providers: provs, admins: admins, phones: phones}
}

// Provision creates the profile row for roleName and records the role on the
// identity in one transaction. A second call for the same identity fails with
// ErrProfileExists and leaves the first profile untouched.
func (p *Provisioner) Provision(ctx context.Context, identityID uuid.UUID, roleName string, attrs ProfileAttributes) (*RoleProfile, error) {
	role, err := auth.ParseRole(roleName)
	if err != nil {
		return nil, fmt.Errorf("provision %q: %w", roleName, err)
	}
	if p.phones != nil {
		phone, err := p.phones.Normalize(attrs.Phone)
		if err != nil {
			return nil, err
		}
		attrs.Phone = phone
	}

	var profile *RoleProfile
	err = p.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := p.identities.ClaimRole(ctx, identityID, role); err != nil {
			return err
		}
		var err error
		profile, err = p.createProfile(ctx, identityID, role, attrs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (p *Provisioner) createProfile(ctx context.Context, identityID uuid.UUID, role auth.Role, attrs ProfileAttributes) (*RoleProfile, error) {
	switch role {
	case auth.RolePatient:
		pat := &Patient{IdentityID: identityID, DateOfBirth: attrs.DateOfBirth, Address: attrs.Address, Phone: attrs.Phone}
		if err := p.patients.Create(ctx, pat); err != nil {
			return nil, fmt.Errorf("create patient profile: %w", err)
		}
		return &RoleProfile{Role: role, Patient: pat}, nil
	case auth.RoleMedical:
		mp := &MedicalProfessional{IdentityID: identityID, Specialization: attrs.Specialization, Phone: attrs.Phone}
		if err := p.providers.Create(ctx, mp); err != nil {
			return nil, fmt.Errorf("create medical professional profile: %w", err)
		}
		return &RoleProfile{Role: role, Provider: mp}, nil
	case auth.RoleAdmin:
		a := &FacilityAdministrator{IdentityID: identityID, FacilityName: attrs.FacilityName, Phone: attrs.Phone}
		if err := p.admins.Create(ctx, a); err != nil {
			return nil, fmt.Errorf("create administrator profile: %w", err)
		}
		return &RoleProfile{Role: role, Administrator: a}, nil
	}
	return nil, auth.ErrInvalidRole
}

// Profile loads the profile matching the identity's role. An identity
// without a role yields an empty profile.
func (p *Provisioner) Profile(ctx context.Context, ident *Identity) (*RoleProfile, error) {
	profile := &RoleProfile{Role: ident.Role}
	var err error
	switch ident.Role {
	case auth.RolePatient:
		profile.Patient, err = p.patients.GetByIdentity(ctx, ident.ID)
	case auth.RoleMedical:
		profile.Provider, err = p.providers.GetByIdentity(ctx, ident.ID)
	case auth.RoleAdmin:
		profile.Administrator, err = p.admins.GetByIdentity(ctx, ident.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s profile: %w", ident.Role, err)
	}
	return profile, nil
}
