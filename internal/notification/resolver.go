package notification

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/shared/types"
)

// TemplateSource resolves template records. Lookups return (nil, nil)
// when no matching record exists.
type TemplateSource interface {
	FindByID(ctx context.Context, id types.ID) (*Template, error)
	FindSystemDefault(ctx context.Context, code EventCode, ch Channel) (*Template, error)
}

// Resolver resolves the template for a dispatch by precedence: the
// clinic-custom template referenced by the channel setting first, the
// system-default template second. For the email channel the clinic's
// header/footer fragments are concatenated around the resolved body so
// rendering the result substitutes them with the same context.
type Resolver struct {
	templates TemplateSource
	clinics   ClinicSource
	log       *zap.Logger
}

// NewResolver creates a template resolver
func NewResolver(templates TemplateSource, clinics ClinicSource, log *zap.Logger) *Resolver {
	return &Resolver{templates: templates, clinics: clinics, log: log}
}

// Resolve returns the template for (clinic, event, channel). An
// inactive referenced template is treated as if it were not referenced.
// When neither a custom nor a system-default template exists the event
// cannot be processed on this channel and a template_not_found dispatch
// error is returned.
func (r *Resolver) Resolve(ctx context.Context, clinicID types.ID, code EventCode, ch Channel, overrideID *types.ID) (*Template, *DispatchError) {
	if overrideID != nil && !overrideID.IsZero() {
		tmpl, err := r.templates.FindByID(ctx, *overrideID)
		if err != nil {
			return nil, wrapDispatchError(KindTemplateNotFound, "failed to load custom template", err)
		}
		if tmpl != nil && tmpl.Active {
			return r.withEmailFragments(ctx, clinicID, ch, tmpl), nil
		}
		if tmpl != nil {
			r.log.Debug("referenced template inactive, falling back to system default",
				zap.String("template_id", overrideID.String()),
				zap.String("event_code", string(code)))
		}
	}

	tmpl, err := r.templates.FindSystemDefault(ctx, code, ch)
	if err != nil {
		return nil, wrapDispatchError(KindTemplateNotFound, "failed to load system default template", err)
	}
	if tmpl == nil {
		return nil, newDispatchError(KindTemplateNotFound,
			"no template configured for event "+string(code)+" on channel "+string(ch))
	}

	return r.withEmailFragments(ctx, clinicID, ch, tmpl), nil
}

// withEmailFragments wraps the body with the clinic's header/footer for
// the email channel. Other channels get the body untouched. The
// returned template is a copy; resolved templates are never mutated in
// place.
func (r *Resolver) withEmailFragments(ctx context.Context, clinicID types.ID, ch Channel, tmpl *Template) *Template {
	out := *tmpl
	if ch != ChannelEmail {
		return &out
	}

	c, err := r.clinics.FindByID(ctx, clinicID)
	if err != nil {
		r.log.Warn("clinic lookup failed, email sent without header/footer",
			zap.String("clinic_id", clinicID.String()),
			zap.Error(err))
		return &out
	}

	var parts []string
	if c.EmailHeader != "" {
		parts = append(parts, c.EmailHeader)
	}
	parts = append(parts, out.Body)
	if c.EmailFooter != "" {
		parts = append(parts, c.EmailFooter)
	}
	out.Body = strings.Join(parts, "\n")

	return &out
}
