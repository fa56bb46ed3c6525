package careteam

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcore/hospital/internal/domain/identity"
	"github.com/medcore/hospital/internal/platform/db"
)

type assignmentRepoPG struct{ pool *pgxpool.Pool }

func NewAssignmentRepoPG(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

const patientOrder = ` ORDER BY i.last_name, i.first_name, i.username`

func (r *assignmentRepoPG) Create(ctx context.Context, a *Assignment) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO care_assignment (id, medical_professional_id, patient_id)
		VALUES ($1,$2,$3)
		RETURNING created_at`,
		a.ID, a.ProviderID, a.PatientID,
	).Scan(&a.CreatedAt)
	if _, ok := db.UniqueViolation(err); ok {
		return ErrAlreadyAssigned
	}
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (r *assignmentRepoPG) Delete(ctx context.Context, providerID, patientID uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM care_assignment WHERE medical_professional_id = $1 AND patient_id = $2`,
		providerID, patientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAssigned
	}
	return nil
}

func (r *assignmentRepoPG) Exists(ctx context.Context, providerID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM care_assignment WHERE medical_professional_id = $1 AND patient_id = $2)`,
		providerID, patientID,
	).Scan(&exists)
	return exists, err
}

func (r *assignmentRepoPG) AssignedPatients(ctx context.Context, providerID uuid.UUID) ([]*identity.Patient, error) {
	return r.patients(ctx, `SELECT `+identity.PatientColumns+identity.PatientFrom+`
		JOIN care_assignment ca ON ca.patient_id = p.id
		WHERE ca.medical_professional_id = $1`+patientOrder, providerID)
}

func (r *assignmentRepoPG) UnassignedPatients(ctx context.Context, providerID uuid.UUID) ([]*identity.Patient, error) {
	return r.patients(ctx, `SELECT `+identity.PatientColumns+identity.PatientFrom+`
		WHERE NOT EXISTS (
			SELECT 1 FROM care_assignment ca
			WHERE ca.patient_id = p.id AND ca.medical_professional_id = $1
		)`+patientOrder, providerID)
}

func (r *assignmentRepoPG) PatientsSeenBy(ctx context.Context, providerID uuid.UUID) ([]*identity.Patient, error) {
	return r.patients(ctx, `SELECT `+identity.PatientColumns+identity.PatientFrom+`
		WHERE EXISTS (
			SELECT 1 FROM appointment a
			WHERE a.patient_id = p.id AND a.medical_professional_id = $1
		)`+patientOrder, providerID)
}

func (r *assignmentRepoPG) AllPatients(ctx context.Context) ([]*identity.Patient, error) {
	return r.patients(ctx, `SELECT `+identity.PatientColumns+identity.PatientFrom+patientOrder)
}

func (r *assignmentRepoPG) patients(ctx context.Context, query string, args ...interface{}) ([]*identity.Patient, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPatients(rows)
}

func collectPatients(rows pgx.Rows) ([]*identity.Patient, error) {
	var items []*identity.Patient
	for rows.Next() {
		p, err := identity.ScanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
