package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/db"
)

// limitArg turns a non-positive limit into SQL NULL, which LIMIT reads as
// no limit.
func limitArg(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// profileConflict maps a duplicate identity_id insert to ErrProfileExists.
func profileConflict(err error) error {
	if _, ok := db.UniqueViolation(err); ok {
		return ErrProfileExists
	}
	return err
}

// =========== Identity Repository ===========

type identityRepoPG struct{ pool *pgxpool.Pool }

func NewIdentityRepoPG(pool *pgxpool.Pool) IdentityRepository { return &identityRepoPG{pool: pool} }

const identityCols = `id, username, password_hash, first_name, last_name, email, role, created_at, updated_at`

func (r *identityRepoPG) scanIdentity(row pgx.Row) (*Identity, error) {
	var i Identity
	var role *string
	if err := row.Scan(&i.ID, &i.Username, &i.PasswordHash, &i.FirstName, &i.LastName,
		&i.Email, &role, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	if role != nil {
		i.Role = auth.Role(*role)
	}
	return &i, nil
}

func (r *identityRepoPG) Create(ctx context.Context, i *Identity) error {
	i.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO identity (id, username, password_hash, first_name, last_name, email)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		i.ID, i.Username, i.PasswordHash, i.FirstName, i.LastName, i.Email,
	).Scan(&i.CreatedAt, &i.UpdatedAt)
	if _, ok := db.UniqueViolation(err); ok {
		return ErrUsernameTaken
	}
	return err
}

func (r *identityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return r.scanIdentity(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+identityCols+` FROM identity WHERE id = $1`, id))
}

func (r *identityRepoPG) GetByUsername(ctx context.Context, username string) (*Identity, error) {
	return r.scanIdentity(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+identityCols+` FROM identity WHERE username = $1`, username))
}

func (r *identityRepoPG) Update(ctx context.Context, i *Identity) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE identity SET first_name=$2, last_name=$3, email=$4, updated_at=NOW()
		WHERE id = $1`,
		i.ID, i.FirstName, i.LastName, i.Email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *identityRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM identity WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *identityRepoPG) ClaimRole(ctx context.Context, id uuid.UUID, role auth.Role) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `UPDATE identity SET role=$2, updated_at=NOW() WHERE id = $1 AND role IS NULL`, id, string(role))
	if err != nil {
		return fmt.Errorf("claim role: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM identity WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrProfileExists
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

// PatientColumns and PatientFrom select a patient joined to its identity.
// Other packages use them with ScanPatient to return full patient rows.
const (
	PatientColumns = `p.id, p.identity_id, p.date_of_birth, p.address, p.phone,
	i.username, i.first_name, i.last_name, i.email`
	PatientFrom = ` FROM patient p JOIN identity i ON i.id = p.identity_id`
)

const (
	patientCols = PatientColumns
	patientFrom = PatientFrom
)

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	return ScanPatient(row)
}

func ScanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.IdentityID, &p.DateOfBirth, &p.Address, &p.Phone,
		&p.Username, &p.FirstName, &p.LastName, &p.Email); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient (id, identity_id, date_of_birth, address, phone)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.IdentityID, p.DateOfBirth, p.Address, p.Phone)
	return profileConflict(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.id = $1`, id))
}

func (r *patientRepoPG) GetByIdentity(ctx context.Context, identityID uuid.UUID) (*Patient, error) {
	return r.scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.identity_id = $1`, identityID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET date_of_birth=$2, address=$3, phone=$4 WHERE id = $1`,
		p.ID, p.DateOfBirth, p.Address, p.Phone)
	return err
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+patientCols+patientFrom+`
		ORDER BY i.last_name, i.first_name, i.username LIMIT $1 OFFSET $2`, limitArg(limit), offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Medical Professional Repository ===========

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository { return &providerRepoPG{pool: pool} }

// ProviderColumns and ProviderFrom select a medical professional joined to
// its identity.
const (
	ProviderColumns = `m.id, m.identity_id, m.specialization, m.phone,
	i.username, i.first_name, i.last_name, i.email`
	ProviderFrom = ` FROM medical_professional m JOIN identity i ON i.id = m.identity_id`
)

const (
	providerCols = ProviderColumns
	providerFrom = ProviderFrom
)

func (r *providerRepoPG) scanProvider(row pgx.Row) (*MedicalProfessional, error) {
	return ScanProvider(row)
}

func ScanProvider(row pgx.Row) (*MedicalProfessional, error) {
	var m MedicalProfessional
	if err := row.Scan(&m.ID, &m.IdentityID, &m.Specialization, &m.Phone,
		&m.Username, &m.FirstName, &m.LastName, &m.Email); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *providerRepoPG) Create(ctx context.Context, m *MedicalProfessional) error {
	m.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO medical_professional (id, identity_id, specialization, phone)
		VALUES ($1,$2,$3,$4)`,
		m.ID, m.IdentityID, m.Specialization, m.Phone)
	return profileConflict(err)
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalProfessional, error) {
	return r.scanProvider(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+providerCols+providerFrom+` WHERE m.id = $1`, id))
}

func (r *providerRepoPG) GetByIdentity(ctx context.Context, identityID uuid.UUID) (*MedicalProfessional, error) {
	return r.scanProvider(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+providerCols+providerFrom+` WHERE m.identity_id = $1`, identityID))
}

func (r *providerRepoPG) Update(ctx context.Context, m *MedicalProfessional) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE medical_professional SET specialization=$2, phone=$3 WHERE id = $1`,
		m.ID, m.Specialization, m.Phone)
	return err
}

func (r *providerRepoPG) List(ctx context.Context, limit, offset int) ([]*MedicalProfessional, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM medical_professional`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+providerCols+providerFrom+`
		ORDER BY i.last_name, i.first_name, i.username LIMIT $1 OFFSET $2`, limitArg(limit), offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*MedicalProfessional
	for rows.Next() {
		m, err := r.scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

// =========== Facility Administrator Repository ===========

type administratorRepoPG struct{ pool *pgxpool.Pool }

func NewAdministratorRepoPG(pool *pgxpool.Pool) AdministratorRepository {
	return &administratorRepoPG{pool: pool}
}

func (r *administratorRepoPG) Create(ctx context.Context, a *FacilityAdministrator) error {
	a.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO facility_administrator (id, identity_id, facility_name, phone)
		VALUES ($1,$2,$3,$4)`,
		a.ID, a.IdentityID, a.FacilityName, a.Phone)
	return profileConflict(err)
}

func (r *administratorRepoPG) GetByIdentity(ctx context.Context, identityID uuid.UUID) (*FacilityAdministrator, error) {
	var a FacilityAdministrator
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT a.id, a.identity_id, a.facility_name, a.phone, i.username, i.first_name, i.last_name, i.email
		FROM facility_administrator a JOIN identity i ON i.id = a.identity_id
		WHERE a.identity_id = $1`, identityID,
	).Scan(&a.ID, &a.IdentityID, &a.FacilityName, &a.Phone, &a.Username, &a.FirstName, &a.LastName, &a.Email)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}
