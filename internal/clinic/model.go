package clinic

import (
	"time"

	"github.com/clinicore/platform/internal/shared/types"
)

// Clinic represents a tenant clinic. EmailHeader and EmailFooter are
// template fragments wrapped around every outgoing email body.
type Clinic struct {
	ID          types.ID  `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	EmailHeader string    `json:"email_header,omitempty"`
	EmailFooter string    `json:"email_footer,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
