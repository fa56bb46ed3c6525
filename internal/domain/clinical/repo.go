package clinical

import (
	"context"

	"github.com/google/uuid"
)

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	List(ctx context.Context, f Filter) ([]*Prescription, int, error)
}

type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	List(ctx context.Context, f Filter) ([]*Report, int, error)
}

type TestResultRepository interface {
	Create(ctx context.Context, t *TestResult) error
	List(ctx context.Context, f Filter) ([]*TestResult, int, error)
}
