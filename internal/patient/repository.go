package patient

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/platform/internal/shared/errors"
	"github.com/clinicore/platform/internal/shared/types"
)

// Repository provides database operations for patients
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new patient repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID finds a patient by ID
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Patient, error) {
	query := `
		SELECT id, clinic_id, full_name, COALESCE(email, ''), COALESCE(phone, ''),
			birth_date, created_at, updated_at
		FROM clinic.patients
		WHERE id = $1`

	p := &Patient{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.ClinicID, &p.FullName, &p.Email, &p.Phone,
		&p.BirthDate, &p.CreatedAt, &p.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find patient")
	}

	return p, nil
}
