package patient

import (
	"time"

	"github.com/clinicore/platform/internal/shared/types"
)

// Patient represents a registered patient of a clinic
type Patient struct {
	ID        types.ID   `json:"id"`
	ClinicID  types.ID   `json:"clinic_id"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FirstName returns the first word of the patient's full name
func (p *Patient) FirstName() string {
	for i := 0; i < len(p.FullName); i++ {
		if p.FullName[i] == ' ' {
			return p.FullName[:i]
		}
	}
	return p.FullName
}
