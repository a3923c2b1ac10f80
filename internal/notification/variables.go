package notification

import (
	"regexp"
	"strings"
	"time"
)

// Date and time rendering is a pt-BR contract: day/month/year and a
// 24-hour clock. Golden-output tests depend on these exact layouts.
const (
	dateLayout     = "02/01/2006"
	timeLayout     = "15:04"
	dateTimeLayout = "02/01/2006 às 15:04"
)

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func formatDateTime(t time.Time) string {
	return t.Format(dateTimeLayout)
}

// extractor produces the rendered value of one token. Absent data
// renders as the empty string, never as an error.
type extractor func(vc *VariableContext) string

type tokenBinding struct {
	token   string
	extract extractor
}

// Engine is the variable substitution engine. It owns a fixed registry
// mapping token name to extractor; the registry order is stable so
// rendering is deterministic.
type Engine struct {
	registry []tokenBinding
	known    map[string]bool
}

var tokenPattern = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// NewEngine creates the substitution engine with the full token registry
func NewEngine() *Engine {
	registry := []tokenBinding{
		{"nome_paciente", func(vc *VariableContext) string {
			if vc.Patient == nil {
				return ""
			}
			return vc.Patient.FullName
		}},
		{"primeiro_nome_paciente", func(vc *VariableContext) string {
			if vc.Patient == nil {
				return ""
			}
			return vc.Patient.FirstName
		}},
		{"email_paciente", func(vc *VariableContext) string {
			if vc.Patient == nil {
				return ""
			}
			return vc.Patient.Email
		}},
		{"telefone_paciente", func(vc *VariableContext) string {
			if vc.Patient == nil {
				return ""
			}
			return vc.Patient.Phone
		}},
		{"data_nascimento_paciente", func(vc *VariableContext) string {
			if vc.Patient == nil || vc.Patient.BirthDate == nil {
				return ""
			}
			return formatDate(*vc.Patient.BirthDate)
		}},
		{"data_consulta", func(vc *VariableContext) string {
			if vc.Appointment == nil {
				return ""
			}
			return formatDate(vc.Appointment.ScheduledAt)
		}},
		{"hora_consulta", func(vc *VariableContext) string {
			if vc.Appointment == nil {
				return ""
			}
			return formatTime(vc.Appointment.ScheduledAt)
		}},
		{"data_hora_consulta", func(vc *VariableContext) string {
			if vc.Appointment == nil {
				return ""
			}
			return formatDateTime(vc.Appointment.ScheduledAt)
		}},
		{"nome_medico", func(vc *VariableContext) string {
			if vc.Appointment == nil {
				return ""
			}
			return vc.Appointment.DoctorName
		}},
		{"tipo_consulta", func(vc *VariableContext) string {
			if vc.Appointment == nil {
				return ""
			}
			return vc.Appointment.TypeName
		}},
		{"nome_procedimento", func(vc *VariableContext) string {
			if vc.Appointment == nil {
				return ""
			}
			return vc.Appointment.ProcedureName
		}},
		{"jejum", func(vc *VariableContext) string {
			if vc.Appointment == nil {
				return ""
			}
			return vc.Appointment.FastingRequirement
		}},
		{"recomendacoes", func(vc *VariableContext) string {
			if vc.Appointment == nil {
				return ""
			}
			return vc.Appointment.Recommendations
		}},
		{"instrucoes_especiais", func(vc *VariableContext) string {
			if vc.Appointment == nil {
				return ""
			}
			return vc.Appointment.SpecialInstructions
		}},
		{"observacoes_preparo", func(vc *VariableContext) string {
			if vc.Appointment == nil {
				return ""
			}
			return vc.Appointment.PreparationNotes
		}},
		{"preparo_completo", preparoCompleto},
		{"nome_formulario", func(vc *VariableContext) string {
			if vc.Form == nil {
				return ""
			}
			return vc.Form.Name
		}},
		{"link_formulario", func(vc *VariableContext) string {
			if vc.Form == nil {
				return ""
			}
			return vc.Form.Link
		}},
		{"nome_clinica", func(vc *VariableContext) string {
			if vc.Clinic == nil {
				return ""
			}
			return vc.Clinic.Name
		}},
		{"email_clinica", func(vc *VariableContext) string {
			if vc.Clinic == nil {
				return ""
			}
			return vc.Clinic.Email
		}},
		{"telefone_clinica", func(vc *VariableContext) string {
			if vc.Clinic == nil {
				return ""
			}
			return vc.Clinic.Phone
		}},
		{"endereco_clinica", func(vc *VariableContext) string {
			if vc.Clinic == nil {
				return ""
			}
			return vc.Clinic.Address
		}},
	}

	known := make(map[string]bool, len(registry))
	for _, b := range registry {
		known[b.token] = true
	}

	return &Engine{registry: registry, known: known}
}

// preparoCompleto synthesizes the complete preparation instructions from
// up to four optional sub-fields, each prefixed by a fixed label, each
// section omitted when absent, joined by a blank line.
func preparoCompleto(vc *VariableContext) string {
	if vc.Appointment == nil {
		return ""
	}

	sections := []struct {
		label string
		value string
	}{
		{"Jejum: ", vc.Appointment.FastingRequirement},
		{"Recomendações: ", vc.Appointment.Recommendations},
		{"Instruções especiais: ", vc.Appointment.SpecialInstructions},
		{"Observações: ", vc.Appointment.PreparationNotes},
	}

	var parts []string
	for _, s := range sections {
		if s.value != "" {
			parts = append(parts, s.label+s.value)
		}
	}

	return strings.Join(parts, "\n\n")
}

// Render replaces every occurrence of every known token with its
// extracted value. Unknown tokens pass through verbatim; absent data
// renders as the empty string. Rendering never fails.
func (e *Engine) Render(template string, vc *VariableContext) string {
	if template == "" {
		return ""
	}
	if vc == nil {
		vc = &VariableContext{}
	}

	out := template
	for _, b := range e.registry {
		placeholder := "{{" + b.token + "}}"
		if strings.Contains(out, placeholder) {
			out = strings.ReplaceAll(out, placeholder, b.extract(vc))
		}
	}
	return out
}

// ExtractVariables scans the text for token syntax and returns the
// unique token names in first-seen order, known or not.
func (e *Engine) ExtractVariables(text string) []string {
	matches := tokenPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	var tokens []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			tokens = append(tokens, m[1])
		}
	}
	return tokens
}

// ValidationResult reports tokens used in a text that the engine does
// not know. Intended for template-authoring surfaces; rendering itself
// stays lenient.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Unknown []string `json:"unknown,omitempty"`
}

// Validate reports any token in the text that is not in the registry
func (e *Engine) Validate(text string) ValidationResult {
	var unknown []string
	for _, token := range e.ExtractVariables(text) {
		if !e.known[token] {
			unknown = append(unknown, token)
		}
	}
	return ValidationResult{Valid: len(unknown) == 0, Unknown: unknown}
}

// KnownTokens returns the registry's token names in registry order
func (e *Engine) KnownTokens() []string {
	tokens := make([]string, len(e.registry))
	for i, b := range e.registry {
		tokens[i] = b.token
	}
	return tokens
}
