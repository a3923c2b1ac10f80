package notification

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/platform/internal/shared/errors"
	"github.com/clinicore/platform/internal/shared/types"
)

// PendingRepository persists messages awaiting manual approval
type PendingRepository struct {
	pool *pgxpool.Pool
}

// NewPendingRepository creates a pending message repository
func NewPendingRepository(pool *pgxpool.Pool) *PendingRepository {
	return &PendingRepository{pool: pool}
}

// Create inserts a rendered message in pending state
func (r *PendingRepository) Create(ctx context.Context, m *PendingMessage) error {
	var snapshot []byte
	if m.Context != nil {
		var err error
		snapshot, err = json.Marshal(m.Context)
		if err != nil {
			return errors.Wrap(err, "failed to marshal context snapshot")
		}
	}

	query := `
		INSERT INTO notifications.pending_messages
			(id, clinic_id, patient_id, appointment_id, event_id, event_code, channel,
			 template_name, recipient, subject, body, context, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.ClinicID, m.PatientID, m.AppointmentID, m.EventID, m.EventCode, m.Channel,
		m.TemplateName, m.Recipient, m.Subject, m.Body, snapshot, m.Status, m.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create pending message")
	}

	return nil
}

const pendingColumns = `id, clinic_id, patient_id, appointment_id, event_id, event_code,
	channel, template_name, recipient, COALESCE(subject, ''), body, context, status,
	created_at, resolved_at`

func scanPending(row interface{ Scan(...any) error }) (*PendingMessage, error) {
	m := &PendingMessage{}
	var snapshot []byte
	err := row.Scan(
		&m.ID, &m.ClinicID, &m.PatientID, &m.AppointmentID, &m.EventID, &m.EventCode,
		&m.Channel, &m.TemplateName, &m.Recipient, &m.Subject, &m.Body, &snapshot, &m.Status,
		&m.CreatedAt, &m.ResolvedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan pending message")
	}
	if len(snapshot) > 0 {
		m.Context = &VariableContext{}
		if err := json.Unmarshal(snapshot, m.Context); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal context snapshot")
		}
	}
	return m, nil
}

// Get returns a pending message by ID scoped to a clinic
func (r *PendingRepository) Get(ctx context.Context, clinicID, id types.ID) (*PendingMessage, error) {
	query := `SELECT ` + pendingColumns + `
		FROM notifications.pending_messages
		WHERE id = $1 AND clinic_id = $2`

	rows, err := r.pool.Query(ctx, query, id, clinicID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query pending message")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.NotFound("pending message", id.String())
	}
	return scanPending(rows)
}

// ListPending returns a clinic's unresolved messages, oldest first
func (r *PendingRepository) ListPending(ctx context.Context, clinicID types.ID, limit int) ([]*PendingMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + pendingColumns + `
		FROM notifications.pending_messages
		WHERE clinic_id = $1 AND status = 'pending'
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, clinicID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending messages")
	}
	defer rows.Close()

	var messages []*PendingMessage
	for rows.Next() {
		m, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, nil
}

// MarkSent resolves a pending message as approved and delivered. Returns
// Conflict when the message was already resolved.
func (r *PendingRepository) MarkSent(ctx context.Context, clinicID, id types.ID) error {
	return r.resolve(ctx, clinicID, id, PendingStatusSent)
}

// Dismiss resolves a pending message without sending. Returns Conflict
// when the message was already resolved.
func (r *PendingRepository) Dismiss(ctx context.Context, clinicID, id types.ID) error {
	return r.resolve(ctx, clinicID, id, PendingStatusDismissed)
}

func (r *PendingRepository) resolve(ctx context.Context, clinicID, id types.ID, status PendingStatus) error {
	query := `
		UPDATE notifications.pending_messages
		SET status = $3, resolved_at = NOW()
		WHERE id = $1 AND clinic_id = $2 AND status = 'pending'`

	tag, err := r.pool.Exec(ctx, query, id, clinicID, status)
	if err != nil {
		return errors.Wrap(err, "failed to resolve pending message")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict("pending message already resolved")
	}

	return nil
}
