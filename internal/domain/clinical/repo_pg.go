package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcore/hospital/internal/platform/db"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// whereClause renders the filter over the table aliased t. The returned
// index is the next free placeholder.
func whereClause(f Filter) (string, []interface{}, int) {
	var where []string
	var args []interface{}
	idx := 1
	if f.PatientID != nil {
		where = append(where, fmt.Sprintf(`t.patient_id = $%d`, idx))
		args = append(args, *f.PatientID)
		idx++
	}
	if f.ProviderID != nil {
		where = append(where, fmt.Sprintf(`t.medical_professional_id = $%d`, idx))
		args = append(args, *f.ProviderID)
		idx++
	}
	if len(where) == 0 {
		return "", args, idx
	}
	return ` WHERE ` + strings.Join(where, ` AND `), args, idx
}

func pageClause(f Filter, idx int, args []interface{}) (string, []interface{}) {
	if f.Limit <= 0 {
		return "", args
	}
	return fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1), append(args, f.Limit, f.Offset)
}

// list runs the count and page queries of a filtered listing.
func list[T any](ctx context.Context, conn db.Querier, table, cols, from, order string, f Filter, scan func(pgx.Row) (*T, error)) ([]*T, int, error) {
	cond, args, idx := whereClause(f)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` t`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := pageClause(f, idx, args)
	rows, err := conn.Query(ctx, `SELECT `+cols+from+cond+order+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// people joins the patient and provider names of a record aliased t. Either
// side may be missing.
const people = `
	LEFT JOIN patient p ON p.id = t.patient_id
	LEFT JOIN identity pi ON pi.id = p.identity_id
	LEFT JOIN medical_professional m ON m.id = t.medical_professional_id
	LEFT JOIN identity mi ON mi.id = m.identity_id`

const names = `COALESCE(TRIM(pi.first_name || ' ' || pi.last_name), ''), COALESCE(TRIM(mi.first_name || ' ' || mi.last_name), '')`

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

const (
	rxCols = `t.id, t.patient_id, t.medical_professional_id, t.medication_name, t.description, t.created_at, ` + names
	rxFrom = ` FROM prescription t` + people
)

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	if err := row.Scan(&p.ID, &p.PatientID, &p.ProviderID, &p.MedicationName, &p.Description,
		&p.CreatedAt, &p.PatientName, &p.ProviderName); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO prescription (id, patient_id, medical_professional_id, medication_name, description)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		p.ID, p.PatientID, p.ProviderID, p.MedicationName, p.Description,
	).Scan(&p.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scanPrescription(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+rxCols+rxFrom+` WHERE t.id = $1`, id))
}

func (r *prescriptionRepoPG) List(ctx context.Context, f Filter) ([]*Prescription, int, error) {
	return list(ctx, db.Conn(ctx, r.pool), "prescription", rxCols, rxFrom,
		` ORDER BY t.created_at DESC`, f, scanPrescription)
}

// =========== Report Repository ===========

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository { return &reportRepoPG{pool: pool} }

const (
	reportCols = `t.id, t.patient_id, t.medical_professional_id, t.title, t.summary, t.created_at, ` + names
	reportFrom = ` FROM report t` + people
)

func scanReport(row pgx.Row) (*Report, error) {
	var rp Report
	if err := row.Scan(&rp.ID, &rp.PatientID, &rp.ProviderID, &rp.Title, &rp.Summary,
		&rp.CreatedAt, &rp.PatientName, &rp.ProviderName); err != nil {
		return nil, notFound(err)
	}
	return &rp, nil
}

func (r *reportRepoPG) Create(ctx context.Context, rp *Report) error {
	rp.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO report (id, patient_id, medical_professional_id, title, summary)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		rp.ID, rp.PatientID, rp.ProviderID, rp.Title, rp.Summary,
	).Scan(&rp.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (r *reportRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	return scanReport(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+reportCols+reportFrom+` WHERE t.id = $1`, id))
}

func (r *reportRepoPG) List(ctx context.Context, f Filter) ([]*Report, int, error) {
	return list(ctx, db.Conn(ctx, r.pool), "report", reportCols, reportFrom,
		` ORDER BY t.created_at DESC`, f, scanReport)
}

// =========== Test Result Repository ===========

type testResultRepoPG struct{ pool *pgxpool.Pool }

func NewTestResultRepoPG(pool *pgxpool.Pool) TestResultRepository {
	return &testResultRepoPG{pool: pool}
}

const (
	resultCols = `t.id, t.patient_id, t.medical_professional_id, t.tested_at, t.description, t.result_data, ` + names
	resultFrom = ` FROM test_result t` + people
)

func scanTestResult(row pgx.Row) (*TestResult, error) {
	var tr TestResult
	if err := row.Scan(&tr.ID, &tr.PatientID, &tr.ProviderID, &tr.TestedAt, &tr.Description,
		&tr.ResultData, &tr.PatientName, &tr.ProviderName); err != nil {
		return nil, notFound(err)
	}
	return &tr, nil
}

func (r *testResultRepoPG) Create(ctx context.Context, tr *TestResult) error {
	tr.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO test_result (id, patient_id, medical_professional_id, tested_at, description, result_data)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		tr.ID, tr.PatientID, tr.ProviderID, tr.TestedAt, tr.Description, tr.ResultData)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (r *testResultRepoPG) List(ctx context.Context, f Filter) ([]*TestResult, int, error) {
	return list(ctx, db.Conn(ctx, r.pool), "test_result", resultCols, resultFrom,
		` ORDER BY t.tested_at DESC`, f, scanTestResult)
}
