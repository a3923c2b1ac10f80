package notification

import (
	"context"

	"github.com/clinicore/platform/internal/shared/types"
)

// OutboundMessage is the rendered message handed to a channel sender
type OutboundMessage struct {
	ClinicID  types.ID
	To        string
	Subject   string
	Body      string
	EventCode EventCode
	// Context is the variable context the body was rendered from. The
	// chat sender needs it to build approved-template parameters when
	// the free-form path is rejected.
	Context *VariableContext
}

// Sender wraps one external delivery provider behind a uniform send
// contract. Implementations do not write the message log; the
// dispatcher does, so audit stays in one place.
type Sender interface {
	Channel() Channel
	// Connected probes whether the provider account is linked for the clinic
	Connected(ctx context.Context, clinicID types.ID) (bool, error)
	// Send delivers the message and returns the provider message ID
	Send(ctx context.Context, msg OutboundMessage) (string, *DispatchError)
}

// MailProvider is the external email delivery provider contract
type MailProvider interface {
	Connected(ctx context.Context, clinicID types.ID) (bool, error)
	SendMail(ctx context.Context, clinicID types.ID, to, subject, htmlBody string) (string, error)
}

// ChatProvider is the external chat (WhatsApp-class) provider contract.
// SendText fails with ErrOutsideSessionWindow when the provider rejects
// free-form text outside the 24-hour customer session window.
type ChatProvider interface {
	Connected(ctx context.Context, clinicID types.ID) (bool, error)
	SendText(ctx context.Context, clinicID types.ID, to, body string) (string, error)
	SendTemplate(ctx context.Context, clinicID types.ID, to string, template MetaTemplateName, params []string) (string, error)
}
