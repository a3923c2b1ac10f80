package notification

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/platform/internal/shared/errors"
	"github.com/clinicore/platform/internal/shared/types"
)

// MessageLogRepository is the append-only record of completed sends
type MessageLogRepository struct {
	pool *pgxpool.Pool
}

// NewMessageLogRepository creates a message log repository
func NewMessageLogRepository(pool *pgxpool.Pool) *MessageLogRepository {
	return &MessageLogRepository{pool: pool}
}

// Append records a completed delivery. Entries are never updated or
// deleted.
func (r *MessageLogRepository) Append(ctx context.Context, e *MessageLogEntry) error {
	query := `
		INSERT INTO notifications.message_log
			(id, clinic_id, patient_id, appointment_id, event_code, channel,
			 template_name, provider_message_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.ClinicID, e.PatientID, e.AppointmentID, e.EventCode, e.Channel,
		e.TemplateName, e.ProviderMessageID, e.SentAt)
	if err != nil {
		return errors.Wrap(err, "failed to append message log entry")
	}

	return nil
}

// List returns a clinic's delivery history, newest first
func (r *MessageLogRepository) List(ctx context.Context, clinicID types.ID, limit int) ([]*MessageLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, clinic_id, patient_id, appointment_id, event_code, channel,
		       template_name, COALESCE(provider_message_id, ''), sent_at
		FROM notifications.message_log
		WHERE clinic_id = $1
		ORDER BY sent_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, clinicID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list message log")
	}
	defer rows.Close()

	var entries []*MessageLogEntry
	for rows.Next() {
		e := &MessageLogEntry{}
		err := rows.Scan(&e.ID, &e.ClinicID, &e.PatientID, &e.AppointmentID, &e.EventCode,
			&e.Channel, &e.TemplateName, &e.ProviderMessageID, &e.SentAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan message log entry")
		}
		entries = append(entries, e)
	}

	return entries, nil
}
