package form

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/platform/internal/shared/errors"
	"github.com/clinicore/platform/internal/shared/types"
)

// Repository provides database operations for form instances
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new form repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindFirstPendingByAppointment returns the oldest non-completed form
// instance linked to the appointment, or nil when every linked form is
// already completed (or none exists).
func (r *Repository) FindFirstPendingByAppointment(ctx context.Context, appointmentID types.ID) (*Instance, error) {
	query := `
		SELECT id, clinic_id, appointment_id, patient_id, template_name,
			link_token, completed_at, created_at
		FROM clinic.form_instances
		WHERE appointment_id = $1 AND completed_at IS NULL
		ORDER BY created_at
		LIMIT 1`

	rows, err := r.pool.Query(ctx, query, appointmentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query form instances")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	i := &Instance{}
	err = rows.Scan(
		&i.ID, &i.ClinicID, &i.AppointmentID, &i.PatientID, &i.TemplateName,
		&i.LinkToken, &i.CompletedAt, &i.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan form instance")
	}

	return i, nil
}
