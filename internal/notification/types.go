package notification

import (
	"time"

	"github.com/clinicore/platform/internal/shared/types"
)

// Channel represents a delivery medium
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Channels lists every supported delivery channel
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelWhatsApp}
}

// SendMode controls whether a rendered message is delivered immediately
// or queued for manual approval
type SendMode string

const (
	SendModeAutomatic SendMode = "automatic"
	SendModeManual    SendMode = "manual"
)

// EventCode identifies a business occurrence that may trigger a notification
type EventCode string

const (
	EventAppointmentCreated  EventCode = "appointment_created"
	EventAppointmentUpdated  EventCode = "appointment_updated"
	EventAppointmentCanceled EventCode = "appointment_canceled"
	EventAppointmentReminder EventCode = "appointment_reminder"
	EventFormLinked          EventCode = "form_linked"
	EventPublicFormSubmitted EventCode = "public_form_submitted"
)

// EventCodes lists every event code the dispatcher accepts
func EventCodes() []EventCode {
	return []EventCode{
		EventAppointmentCreated,
		EventAppointmentUpdated,
		EventAppointmentCanceled,
		EventAppointmentReminder,
		EventFormLinked,
		EventPublicFormSubmitted,
	}
}

// Valid reports whether the event code is in the supported set
func (c EventCode) Valid() bool {
	for _, code := range EventCodes() {
		if c == code {
			return true
		}
	}
	return false
}

// ChannelSetting is the per (clinic, event_code, channel) configuration.
// Owned by clinic configuration; read-only to the dispatch engine.
type ChannelSetting struct {
	ID         types.ID  `json:"id"`
	ClinicID   types.ID  `json:"clinic_id"`
	EventCode  EventCode `json:"event_code"`
	Channel    Channel   `json:"channel"`
	Enabled    bool      `json:"enabled"`
	SendMode   SendMode  `json:"send_mode"`
	TemplateID *types.ID `json:"template_id,omitempty"`
}

// Template is a message template. Subject applies to email only. A
// template with ClinicID unset and IsDefault set is the system-wide
// fallback for its (event_code, channel) pair.
type Template struct {
	ID        types.ID  `json:"id"`
	ClinicID  *types.ID `json:"clinic_id,omitempty"`
	EventCode EventCode `json:"event_code"`
	Channel   Channel   `json:"channel"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	IsDefault bool      `json:"is_default"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PendingStatus is the manual-approval state of a rendered message
type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "pending"
	PendingStatusSent      PendingStatus = "sent"
	PendingStatusDismissed PendingStatus = "dismissed"
)

// PendingMessage is a rendered-but-unsent message awaiting manual
// approval. Context carries the raw variable context snapshot used for
// rendering, for audit and debugging.
type PendingMessage struct {
	ID            types.ID         `json:"id"`
	ClinicID      types.ID         `json:"clinic_id"`
	PatientID     *types.ID        `json:"patient_id,omitempty"`
	AppointmentID *types.ID        `json:"appointment_id,omitempty"`
	EventID       *types.ID        `json:"event_id,omitempty"`
	EventCode     EventCode        `json:"event_code"`
	Channel       Channel          `json:"channel"`
	TemplateName  string           `json:"template_name"`
	Recipient     string           `json:"recipient"`
	Subject       string           `json:"subject,omitempty"`
	Body          string           `json:"body"`
	Context       *VariableContext `json:"context,omitempty"`
	Status        PendingStatus    `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	ResolvedAt    *time.Time       `json:"resolved_at,omitempty"`
}

// MessageLogEntry is the append-only record of a completed send
type MessageLogEntry struct {
	ID                types.ID  `json:"id"`
	ClinicID          types.ID  `json:"clinic_id"`
	PatientID         *types.ID `json:"patient_id,omitempty"`
	AppointmentID     *types.ID `json:"appointment_id,omitempty"`
	EventCode         EventCode `json:"event_code"`
	Channel           Channel   `json:"channel"`
	TemplateName      string    `json:"template_name"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	SentAt            time.Time `json:"sent_at"`
}

// DispatchResult is the success outcome of a dispatch. Exactly one of
// DeliveryID (automatic mode) or PendingID (manual mode) is set.
type DispatchResult struct {
	DeliveryID string   `json:"delivery_id,omitempty"`
	PendingID  types.ID `json:"pending_id,omitempty"`
}

// Pending reports whether the dispatch was queued instead of delivered
func (r DispatchResult) Pending() bool {
	return !r.PendingID.IsZero()
}
