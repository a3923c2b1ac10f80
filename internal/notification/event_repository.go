package notification

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/platform/internal/shared/errors"
	"github.com/clinicore/platform/internal/shared/types"
)

// EventRepository persists notification events and their processing state
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates an event repository
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Save inserts a new event record. Already-stored events are left
// untouched so a replayed bus message does not reset processing state.
func (r *EventRepository) Save(ctx context.Context, e *Event) error {
	var metadata []byte
	if e.PublicMetadata != nil {
		var err error
		metadata, err = json.Marshal(e.PublicMetadata)
		if err != nil {
			return errors.Wrap(err, "failed to marshal public metadata")
		}
	}

	query := `
		INSERT INTO notifications.events
			(id, event_code, clinic_id, patient_id, appointment_id, public_metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.EventCode, e.ClinicID, e.PatientID, e.AppointmentID, metadata, e.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save event")
	}

	return nil
}

// FindByID returns an event by ID
func (r *EventRepository) FindByID(ctx context.Context, id types.ID) (*Event, error) {
	query := `
		SELECT id, event_code, clinic_id, patient_id, appointment_id,
		       public_metadata, processed_at, acknowledged_channels, created_at
		FROM notifications.events
		WHERE id = $1`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query event")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.NotFound("event", id.String())
	}

	e := &Event{}
	var metadata []byte
	var acked []string
	err = rows.Scan(&e.ID, &e.EventCode, &e.ClinicID, &e.PatientID, &e.AppointmentID,
		&metadata, &e.ProcessedAt, &acked, &e.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan event")
	}

	if len(metadata) > 0 {
		e.PublicMetadata = &PublicMetadata{}
		if err := json.Unmarshal(metadata, e.PublicMetadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal public metadata")
		}
	}
	for _, ch := range acked {
		e.AcknowledgedChannels = append(e.AcknowledgedChannels, Channel(ch))
	}

	return e, nil
}

// MarkProcessed stamps the event as consumed. Subsequent dispatches of
// the same event still run; the stamp is informational.
func (r *EventRepository) MarkProcessed(ctx context.Context, id types.ID) error {
	query := `UPDATE notifications.events SET processed_at = NOW() WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, "failed to mark event processed")
	}

	return nil
}

// MarkAcknowledged records that the event completed on one channel
// without touching the other channel's state.
func (r *EventRepository) MarkAcknowledged(ctx context.Context, id types.ID, ch Channel) error {
	query := `
		UPDATE notifications.events
		SET acknowledged_channels = array_append(acknowledged_channels, $2)
		WHERE id = $1 AND NOT ($2 = ANY(acknowledged_channels))`

	_, err := r.pool.Exec(ctx, query, id, string(ch))
	if err != nil {
		return errors.Wrap(err, "failed to mark event acknowledged")
	}

	return nil
}
