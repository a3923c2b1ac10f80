package appointment

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/platform/internal/shared/errors"
	"github.com/clinicore/platform/internal/shared/types"
)

// Repository provides database operations for appointments
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new appointment repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID finds an appointment by ID with its doctor, type and procedure
// joins resolved. Each join is either fully populated or nil.
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Appointment, error) {
	query := `
		SELECT a.id, a.clinic_id, a.patient_id, a.scheduled_at, a.status,
			a.reminder_sent_at, a.created_at, a.updated_at,
			d.id, d.full_name,
			t.id, t.name,
			p.id, p.name,
			COALESCE(p.fasting_requirement, ''), COALESCE(p.recommendations, ''),
			COALESCE(p.special_instructions, ''), COALESCE(p.preparation_notes, '')
		FROM clinic.appointments a
		LEFT JOIN clinic.doctors d ON d.id = a.doctor_id
		LEFT JOIN clinic.appointment_types t ON t.id = a.appointment_type_id
		LEFT JOIN clinic.procedures p ON p.id = a.procedure_id
		WHERE a.id = $1`

	a := &Appointment{}
	var (
		doctorID, doctorName     *string
		typeID, typeName         *string
		procID, procName         *string
		fasting, recommendations string
		special, prepNotes       string
	)

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.ClinicID, &a.PatientID, &a.ScheduledAt, &a.Status,
		&a.ReminderSentAt, &a.CreatedAt, &a.UpdatedAt,
		&doctorID, &doctorName,
		&typeID, &typeName,
		&procID, &procName,
		&fasting, &recommendations,
		&special, &prepNotes,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("appointment", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find appointment")
	}

	if doctorID != nil && doctorName != nil {
		a.Doctor = &Doctor{ID: types.ID(*doctorID), FullName: *doctorName}
	}
	if typeID != nil && typeName != nil {
		a.Type = &AppointmentType{ID: types.ID(*typeID), Name: *typeName}
	}
	if procID != nil && procName != nil {
		a.Procedure = &Procedure{
			ID:                  types.ID(*procID),
			Name:                *procName,
			FastingRequirement:  fasting,
			Recommendations:     recommendations,
			SpecialInstructions: special,
			PreparationNotes:    prepNotes,
		}
	}

	return a, nil
}

// FindDueForReminder lists scheduled appointments starting before the
// given horizon that have not had a reminder sent yet.
func (r *Repository) FindDueForReminder(ctx context.Context, horizon time.Time, limit int) ([]Appointment, error) {
	query := `
		SELECT id, clinic_id, patient_id, scheduled_at, status,
			reminder_sent_at, created_at, updated_at
		FROM clinic.appointments
		WHERE status = 'scheduled'
			AND reminder_sent_at IS NULL
			AND scheduled_at > NOW()
			AND scheduled_at <= $1
		ORDER BY scheduled_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, horizon, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list appointments due for reminder")
	}
	defer rows.Close()

	var appointments []Appointment
	for rows.Next() {
		var a Appointment
		err := rows.Scan(
			&a.ID, &a.ClinicID, &a.PatientID, &a.ScheduledAt, &a.Status,
			&a.ReminderSentAt, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan appointment")
		}
		appointments = append(appointments, a)
	}

	return appointments, nil
}

// MarkReminderSent stamps the appointment so the scheduler does not
// publish a second reminder for it.
func (r *Repository) MarkReminderSent(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE clinic.appointments SET reminder_sent_at = NOW() WHERE id = $1 AND reminder_sent_at IS NULL`,
		id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark reminder sent")
	}
	if result.RowsAffected() == 0 {
		return errors.Conflict("reminder already sent for this appointment")
	}
	return nil
}
