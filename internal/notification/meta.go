package notification

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MetaTemplateName identifies one of the pre-approved chat templates a
// provider accepts outside the customer session window.
type MetaTemplateName string

const (
	MetaTemplateAppointment MetaTemplateName = "session_appointment"
	MetaTemplateForm        MetaTemplateName = "session_form"
	MetaTemplateNotice      MetaTemplateName = "session_notice"
)

// metaBodyLimit caps the composed message parameter. Approved templates
// reject oversized positional parameters.
const metaBodyLimit = 160

// MetaTemplateConfig maps an event code to its approved template and
// the default phrase used when no richer composition is possible.
type MetaTemplateConfig struct {
	Template MetaTemplateName
	Phrase   string
}

// MetaTemplateParams is the resolved approved-template invocation:
// template name plus ordered positional parameters (recipient name,
// composed message, clinic name).
type MetaTemplateParams struct {
	Template MetaTemplateName `json:"template"`
	Params   []string         `json:"params"`
}

// MetaTemplateMapper maps event codes to approved chat templates. The
// table is injected at construction so alternate tables stay testable;
// DefaultMetaTemplateTable covers every supported event code.
type MetaTemplateMapper struct {
	table map[EventCode]MetaTemplateConfig
}

// DefaultMetaTemplateTable returns the compiled-in mapping. Every event
// code accepted by the dispatcher has exactly one entry.
func DefaultMetaTemplateTable() map[EventCode]MetaTemplateConfig {
	return map[EventCode]MetaTemplateConfig{
		EventAppointmentCreated:  {MetaTemplateAppointment, "Sua consulta foi agendada."},
		EventAppointmentUpdated:  {MetaTemplateAppointment, "Sua consulta foi remarcada."},
		EventAppointmentCanceled: {MetaTemplateNotice, "Sua consulta foi cancelada."},
		EventAppointmentReminder: {MetaTemplateAppointment, "Lembrete da sua consulta."},
		EventFormLinked:          {MetaTemplateForm, "Você tem um formulário para preencher."},
		EventPublicFormSubmitted: {MetaTemplateNotice, "Recebemos o seu formulário."},
	}
}

// NewMetaTemplateMapper creates a mapper over the given table
func NewMetaTemplateMapper(table map[EventCode]MetaTemplateConfig) *MetaTemplateMapper {
	return &MetaTemplateMapper{table: table}
}

// Params resolves the approved template and positional parameters for
// an event code. An event code with no table entry cannot use the
// approved-template fallback path.
func (m *MetaTemplateMapper) Params(code EventCode, vc *VariableContext) (MetaTemplateParams, error) {
	cfg, ok := m.table[code]
	if !ok {
		return MetaTemplateParams{}, fmt.Errorf("no approved template mapped for event code %q", code)
	}
	if vc == nil {
		vc = &VariableContext{}
	}

	var recipient, clinicName string
	if vc.Patient != nil {
		recipient = vc.Patient.FullName
	}
	if vc.Clinic != nil {
		clinicName = vc.Clinic.Name
	}

	return MetaTemplateParams{
		Template: cfg.Template,
		Params:   []string{recipient, m.composeBody(cfg, vc), clinicName},
	}, nil
}

// composeBody builds the single-sentence message parameter for the
// approved template, capped at metaBodyLimit characters.
func (m *MetaTemplateMapper) composeBody(cfg MetaTemplateConfig, vc *VariableContext) string {
	var body string

	switch cfg.Template {
	case MetaTemplateAppointment:
		if vc.Appointment != nil && vc.Appointment.DoctorName != "" {
			body = fmt.Sprintf("%s %s com %s.",
				strings.TrimSuffix(cfg.Phrase, "."),
				formatDateTime(vc.Appointment.ScheduledAt),
				vc.Appointment.DoctorName)
		} else {
			body = cfg.Phrase
		}
	case MetaTemplateForm:
		if vc.Form != nil && vc.Form.Link != "" {
			body = fmt.Sprintf("Preencha o formulário %q pelo link: %s", vc.Form.Name, vc.Form.Link)
		} else {
			body = cfg.Phrase
		}
	default:
		body = cfg.Phrase
	}

	return truncate(body, metaBodyLimit)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
