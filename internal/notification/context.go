package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/appointment"
	"github.com/clinicore/platform/internal/clinic"
	"github.com/clinicore/platform/internal/form"
	"github.com/clinicore/platform/internal/patient"
	"github.com/clinicore/platform/internal/shared/types"
)

// PatientContext is the patient section of a variable context. For
// public-form events it is populated from the submitter metadata.
type PatientContext struct {
	FullName  string     `json:"full_name,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

// AppointmentContext is the appointment section, joins flattened
type AppointmentContext struct {
	ScheduledAt         time.Time `json:"scheduled_at"`
	DoctorName          string    `json:"doctor_name,omitempty"`
	TypeName            string    `json:"type_name,omitempty"`
	ProcedureName       string    `json:"procedure_name,omitempty"`
	FastingRequirement  string    `json:"fasting_requirement,omitempty"`
	Recommendations     string    `json:"recommendations,omitempty"`
	SpecialInstructions string    `json:"special_instructions,omitempty"`
	PreparationNotes    string    `json:"preparation_notes,omitempty"`
}

// FormContext is the pending-form section
type FormContext struct {
	Name string `json:"name,omitempty"`
	Link string `json:"link,omitempty"`
}

// ClinicContext is the clinic section
type ClinicContext struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// VariableContext is the normalized bag of substitutable data built for
// one dispatch. Every section is optional; an absent section renders
// its tokens as empty strings.
type VariableContext struct {
	Patient     *PatientContext     `json:"patient,omitempty"`
	Appointment *AppointmentContext `json:"appointment,omitempty"`
	Form        *FormContext        `json:"form,omitempty"`
	Clinic      *ClinicContext      `json:"clinic,omitempty"`
}

// PatientSource resolves patient records
type PatientSource interface {
	FindByID(ctx context.Context, id types.ID) (*patient.Patient, error)
}

// AppointmentSource resolves appointment records with joins
type AppointmentSource interface {
	FindByID(ctx context.Context, id types.ID) (*appointment.Appointment, error)
}

// ClinicSource resolves clinic records
type ClinicSource interface {
	FindByID(ctx context.Context, id types.ID) (*clinic.Clinic, error)
}

// FormSource resolves the first non-completed form of an appointment
type FormSource interface {
	FindFirstPendingByAppointment(ctx context.Context, appointmentID types.ID) (*form.Instance, error)
}

// ContextBuilder gathers domain facts into one VariableContext. It is
// read-only; a failed lookup of an optional section degrades to an
// absent section rather than failing the dispatch.
type ContextBuilder struct {
	patients     PatientSource
	appointments AppointmentSource
	clinics      ClinicSource
	forms        FormSource
	formBaseURL  string
	log          *zap.Logger
}

// NewContextBuilder creates a context builder
func NewContextBuilder(
	patients PatientSource,
	appointments AppointmentSource,
	clinics ClinicSource,
	forms FormSource,
	formBaseURL string,
	log *zap.Logger,
) *ContextBuilder {
	return &ContextBuilder{
		patients:     patients,
		appointments: appointments,
		clinics:      clinics,
		forms:        forms,
		formBaseURL:  formBaseURL,
		log:          log,
	}
}

// Build assembles the variable context for an event. Every section is
// present-or-absent as a whole. The clinic section comes from the
// tenant record; its lookup failure degrades like the others.
func (b *ContextBuilder) Build(ctx context.Context, event *Event) *VariableContext {
	vc := &VariableContext{}

	if event.IsPublic() {
		md := event.PublicMetadata
		vc.Patient = &PatientContext{
			FullName:  md.Name,
			FirstName: firstWord(md.Name),
			Email:     md.Email,
			Phone:     md.Phone,
			BirthDate: md.BirthDate,
		}
	} else if event.PatientID != nil {
		p, err := b.patients.FindByID(ctx, *event.PatientID)
		if err != nil {
			b.log.Warn("patient lookup failed, section omitted",
				zap.String("patient_id", event.PatientID.String()),
				zap.Error(err))
		} else {
			vc.Patient = &PatientContext{
				FullName:  p.FullName,
				FirstName: p.FirstName(),
				Email:     p.Email,
				Phone:     p.Phone,
				BirthDate: p.BirthDate,
			}
		}
	}

	if event.AppointmentID != nil {
		a, err := b.appointments.FindByID(ctx, *event.AppointmentID)
		if err != nil {
			b.log.Warn("appointment lookup failed, section omitted",
				zap.String("appointment_id", event.AppointmentID.String()),
				zap.Error(err))
		} else {
			ac := &AppointmentContext{ScheduledAt: a.ScheduledAt}
			if a.Doctor != nil {
				ac.DoctorName = a.Doctor.FullName
			}
			if a.Type != nil {
				ac.TypeName = a.Type.Name
			}
			if a.Procedure != nil {
				ac.ProcedureName = a.Procedure.Name
				ac.FastingRequirement = a.Procedure.FastingRequirement
				ac.Recommendations = a.Procedure.Recommendations
				ac.SpecialInstructions = a.Procedure.SpecialInstructions
				ac.PreparationNotes = a.Procedure.PreparationNotes
			}
			vc.Appointment = ac

			// Only the first still-pending form is surfaced. When every
			// linked form is completed the section stays absent so the
			// message stops advertising a redundant link.
			f, err := b.forms.FindFirstPendingByAppointment(ctx, a.ID)
			if err != nil {
				b.log.Warn("form lookup failed, section omitted",
					zap.String("appointment_id", a.ID.String()),
					zap.Error(err))
			} else if f != nil {
				vc.Form = &FormContext{
					Name: f.TemplateName,
					Link: f.Link(b.formBaseURL),
				}
			}
		}
	}

	c, err := b.clinics.FindByID(ctx, event.ClinicID)
	if err != nil {
		b.log.Warn("clinic lookup failed, section omitted",
			zap.String("clinic_id", event.ClinicID.String()),
			zap.Error(err))
	} else {
		vc.Clinic = &ClinicContext{
			Name:    c.Name,
			Email:   c.Email,
			Phone:   c.Phone,
			Address: c.Address,
		}
	}

	return vc
}

func firstWord(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i]
		}
	}
	return s
}
