package clinic

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/platform/internal/shared/errors"
	"github.com/clinicore/platform/internal/shared/types"
)

// Repository provides database operations for clinics
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new clinic repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID finds a clinic by ID
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Clinic, error) {
	query := `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''),
			COALESCE(email_header, ''), COALESCE(email_footer, ''),
			created_at, updated_at
		FROM clinic.clinics
		WHERE id = $1`

	c := &Clinic{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address,
		&c.EmailHeader, &c.EmailFooter,
		&c.CreatedAt, &c.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("clinic", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find clinic")
	}

	return c, nil
}
