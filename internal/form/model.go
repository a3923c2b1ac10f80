package form

import (
	"time"

	"github.com/clinicore/platform/internal/shared/types"
)

// Instance represents a form linked to an appointment or patient. The
// link token is the public URL slug the patient opens to fill it in.
type Instance struct {
	ID            types.ID   `json:"id"`
	ClinicID      types.ID   `json:"clinic_id"`
	AppointmentID *types.ID  `json:"appointment_id,omitempty"`
	PatientID     *types.ID  `json:"patient_id,omitempty"`
	TemplateName  string     `json:"template_name"`
	LinkToken     string     `json:"link_token"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Completed reports whether the form has been filled in
func (i *Instance) Completed() bool {
	return i.CompletedAt != nil
}

// Link builds the public fill-in URL for the form
func (i *Instance) Link(baseURL string) string {
	return baseURL + "/f/" + i.LinkToken
}
