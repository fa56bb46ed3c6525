package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcore/hospital/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const (
	providerSlotKey = "appointment_provider_slot_key"
	patientSlotKey  = "appointment_patient_slot_key"
)

const apptCols = `a.id, a.patient_id, a.medical_professional_id, a.scheduled_at, a.reason,
	a.created_at, a.updated_at,
	TRIM(pi.first_name || ' ' || pi.last_name), TRIM(mi.first_name || ' ' || mi.last_name)`

const apptFrom = ` FROM appointment a
	JOIN patient p ON p.id = a.patient_id
	JOIN identity pi ON pi.id = p.identity_id
	JOIN medical_professional m ON m.id = a.medical_professional_id
	JOIN identity mi ON mi.id = m.identity_id`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.ProviderID, &a.ScheduledAt, &a.Reason,
		&a.CreatedAt, &a.UpdatedAt, &a.PatientName, &a.ProviderName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// slotConflict turns a lost booking race into the same error the explicit
// checks produce.
func slotConflict(err error, at time.Time) error {
	switch constraint, ok := db.UniqueViolation(err); {
	case !ok:
		return err
	case constraint == providerSlotKey:
		return &ConflictError{Busy: BusyProvider, At: at}
	case constraint == patientSlotKey:
		return &ConflictError{Busy: BusyPatient, At: at}
	}
	return err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, medical_professional_id, scheduled_at, reason)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.ProviderID, a.ScheduledAt, a.Reason,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return slotConflict(err, a.ScheduledAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment SET patient_id=$2, medical_professional_id=$3, scheduled_at=$4, reason=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.PatientID, a.ProviderID, a.ScheduledAt, a.Reason,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return slotConflict(err, a.ScheduledAt)
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter) ([]*Appointment, int, error) {
	var where []string
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where = append(where, fmt.Sprintf(`a.patient_id = $%d`, idx))
		args = append(args, *f.PatientID)
		idx++
	}
	if f.ProviderID != nil {
		where = append(where, fmt.Sprintf(`a.medical_professional_id = $%d`, idx))
		args = append(args, *f.ProviderID)
		idx++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf(`a.scheduled_at >= $%d`, idx))
		args = append(args, *f.From)
		idx++
	}
	cond := ""
	if len(where) > 0 {
		cond = ` WHERE ` + strings.Join(where, ` AND `)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointment a`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := ` ORDER BY a.scheduled_at ASC, a.created_at ASC`
	if f.Descending {
		order = ` ORDER BY a.scheduled_at DESC, a.created_at DESC`
	}
	query := `SELECT ` + apptCols + apptFrom + cond + order
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) ProviderBusyAt(ctx context.Context, providerID uuid.UUID, at time.Time, exclude uuid.UUID) (bool, error) {
	return r.busy(ctx, `medical_professional_id`, providerID, at, exclude)
}

func (r *appointmentRepoPG) PatientBusyAt(ctx context.Context, patientID uuid.UUID, at time.Time, exclude uuid.UUID) (bool, error) {
	return r.busy(ctx, `patient_id`, patientID, at, exclude)
}

// busy locks matching rows so a concurrent edit of the same slot waits for
// this transaction.
func (r *appointmentRepoPG) busy(ctx context.Context, column string, id uuid.UUID, at time.Time, exclude uuid.UUID) (bool, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id FROM appointment
		WHERE `+column+` = $1 AND scheduled_at = $2 AND id <> $3
		FOR UPDATE`, id, at, exclude)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	found := rows.Next()
	return found, rows.Err()
}
