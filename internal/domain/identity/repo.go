package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/medcore/hospital/internal/platform/auth"
)

type IdentityRepository interface {
	Create(ctx context.Context, i *Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetByUsername(ctx context.Context, username string) (*Identity, error)
	Update(ctx context.Context, i *Identity) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ClaimRole sets the role of an identity that has none yet. It returns
	// ErrProfileExists when a role is already set.
	ClaimRole(ctx context.Context, id uuid.UUID, role auth.Role) error
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByIdentity(ctx context.Context, identityID uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// List pages patients by name. A non-positive limit returns every row.
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type ProviderRepository interface {
	Create(ctx context.Context, m *MedicalProfessional) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalProfessional, error)
	GetByIdentity(ctx context.Context, identityID uuid.UUID) (*MedicalProfessional, error)
	Update(ctx context.Context, m *MedicalProfessional) error
	List(ctx context.Context, limit, offset int) ([]*MedicalProfessional, int, error)
}

type AdministratorRepository interface {
	Create(ctx context.Context, a *FacilityAdministrator) error
	GetByIdentity(ctx context.Context, identityID uuid.UUID) (*FacilityAdministrator, error)
}

// TxRunner runs fn atomically. *db.TxManager implements it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
