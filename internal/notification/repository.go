package notification

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/platform/internal/shared/errors"
	"github.com/clinicore/platform/internal/shared/types"
)

// SettingsRepository reads per-clinic channel configuration
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a channel settings repository
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Find returns the setting for (clinic, event, channel), or nil when
// none is configured.
func (r *SettingsRepository) Find(ctx context.Context, clinicID types.ID, code EventCode, ch Channel) (*ChannelSetting, error) {
	query := `
		SELECT id, clinic_id, event_code, channel, enabled, send_mode, template_id
		FROM notifications.channel_settings
		WHERE clinic_id = $1 AND event_code = $2 AND channel = $3`

	rows, err := r.pool.Query(ctx, query, clinicID, code, ch)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query channel setting")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	s := &ChannelSetting{}
	err = rows.Scan(&s.ID, &s.ClinicID, &s.EventCode, &s.Channel, &s.Enabled, &s.SendMode, &s.TemplateID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan channel setting")
	}

	return s, nil
}

// ListEnabled returns the enabled settings for a clinic and event code
// across all channels.
func (r *SettingsRepository) ListEnabled(ctx context.Context, clinicID types.ID, code EventCode) ([]ChannelSetting, error) {
	query := `
		SELECT id, clinic_id, event_code, channel, enabled, send_mode, template_id
		FROM notifications.channel_settings
		WHERE clinic_id = $1 AND event_code = $2 AND enabled
		ORDER BY channel`

	rows, err := r.pool.Query(ctx, query, clinicID, code)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list channel settings")
	}
	defer rows.Close()

	var settings []ChannelSetting
	for rows.Next() {
		var s ChannelSetting
		err := rows.Scan(&s.ID, &s.ClinicID, &s.EventCode, &s.Channel, &s.Enabled, &s.SendMode, &s.TemplateID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan channel setting")
		}
		settings = append(settings, s)
	}

	return settings, nil
}

// TemplateRepository reads template records
type TemplateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository creates a template repository
func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

const templateColumns = `id, clinic_id, event_code, channel, name,
	COALESCE(subject, ''), body, is_default, active, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (*Template, error) {
	t := &Template{}
	err := row.Scan(
		&t.ID, &t.ClinicID, &t.EventCode, &t.Channel, &t.Name,
		&t.Subject, &t.Body, &t.IsDefault, &t.Active, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan template")
	}
	return t, nil
}

// FindByID returns a template by ID, or nil when it does not exist
func (r *TemplateRepository) FindByID(ctx context.Context, id types.ID) (*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM notifications.templates WHERE id = $1`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query template")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	return scanTemplate(rows)
}

// FindSystemDefault returns the system-default template for
// (event_code, channel), or nil when none is seeded.
func (r *TemplateRepository) FindSystemDefault(ctx context.Context, code EventCode, ch Channel) (*Template, error) {
	query := `SELECT ` + templateColumns + `
		FROM notifications.templates
		WHERE event_code = $1 AND channel = $2 AND is_default AND clinic_id IS NULL AND active`

	rows, err := r.pool.Query(ctx, query, code, ch)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query system default template")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	return scanTemplate(rows)
}
