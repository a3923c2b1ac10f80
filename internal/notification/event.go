package notification

import (
	"time"

	"github.com/clinicore/platform/internal/shared/types"
)

// PublicMetadata carries the submitter details of an unauthenticated
// public form submission, used in place of a patient record.
type PublicMetadata struct {
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

// Event is a discrete business occurrence consumed once per dispatch
// attempt. Either PatientID references a registered patient, or
// PublicMetadata carries submitter details inline.
type Event struct {
	ID             types.ID        `json:"id"`
	EventCode      EventCode       `json:"event_code"`
	ClinicID       types.ID        `json:"clinic_id"`
	PatientID      *types.ID       `json:"patient_id,omitempty"`
	AppointmentID  *types.ID       `json:"appointment_id,omitempty"`
	PublicMetadata *PublicMetadata `json:"public_metadata,omitempty"`

	ProcessedAt          *time.Time `json:"processed_at,omitempty"`
	AcknowledgedChannels []Channel  `json:"acknowledged_channels,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// IsPublic reports whether the event concerns a public submitter with
// no patient record
func (e *Event) IsPublic() bool {
	return e.PublicMetadata != nil && e.PatientID == nil
}

// AcknowledgedOn reports whether the event was already acknowledged on
// the given channel
func (e *Event) AcknowledgedOn(ch Channel) bool {
	for _, c := range e.AcknowledgedChannels {
		if c == ch {
			return true
		}
	}
	return false
}
