package appointment

import (
	"time"

	"github.com/clinicore/platform/internal/shared/types"
)

// Status represents the appointment lifecycle status
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

// Doctor is the resolved doctor join of an appointment
type Doctor struct {
	ID       types.ID `json:"id"`
	FullName string   `json:"full_name"`
}

// AppointmentType is the resolved appointment-type join
type AppointmentType struct {
	ID   types.ID `json:"id"`
	Name string   `json:"name"`
}

// Procedure is the resolved procedure join, including the preparation
// instruction fields used by notification templates.
type Procedure struct {
	ID                  types.ID `json:"id"`
	Name                string   `json:"name"`
	FastingRequirement  string   `json:"fasting_requirement,omitempty"`
	Recommendations     string   `json:"recommendations,omitempty"`
	SpecialInstructions string   `json:"special_instructions,omitempty"`
	PreparationNotes    string   `json:"preparation_notes,omitempty"`
}

// Appointment represents a scheduled appointment with its joins resolved.
// Doctor, Type and Procedure are nil when the appointment has none.
type Appointment struct {
	ID             types.ID         `json:"id"`
	ClinicID       types.ID         `json:"clinic_id"`
	PatientID      types.ID         `json:"patient_id"`
	ScheduledAt    time.Time        `json:"scheduled_at"`
	Status         Status           `json:"status"`
	Doctor         *Doctor          `json:"doctor,omitempty"`
	Type           *AppointmentType `json:"type,omitempty"`
	Procedure      *Procedure       `json:"procedure,omitempty"`
	ReminderSentAt *time.Time       `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
