package notification

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/shared/metrics"
	"github.com/clinicore/platform/internal/shared/types"
)

// EmailSender delivers rendered messages through the mail provider. No
// channel-specific body transformation happens here; the resolver has
// already applied the clinic header/footer.
type EmailSender struct {
	provider MailProvider
	log      *zap.Logger
}

// NewEmailSender creates an email sender
func NewEmailSender(provider MailProvider, log *zap.Logger) *EmailSender {
	return &EmailSender{provider: provider, log: log}
}

// Channel returns the email channel
func (s *EmailSender) Channel() Channel {
	return ChannelEmail
}

// Connected probes whether the mail provider account is linked
func (s *EmailSender) Connected(ctx context.Context, clinicID types.ID) (bool, error) {
	return s.provider.Connected(ctx, clinicID)
}

// Send delivers an email. Subject and recipient must be non-empty.
func (s *EmailSender) Send(ctx context.Context, msg OutboundMessage) (string, *DispatchError) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return "", newDispatchError(KindMissingRecipientContact, "recipient has no email address")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return "", newDispatchError(KindSendFailure, "email subject is empty")
	}

	start := time.Now()
	messageID, err := s.provider.SendMail(ctx, msg.ClinicID, to, msg.Subject, msg.Body)
	metrics.RecordProviderSend(string(ChannelEmail), time.Since(start))
	if err != nil {
		return "", wrapDispatchError(KindSendFailure, "mail provider rejected the message", err)
	}

	s.log.Info("email sent",
		zap.String("clinic_id", msg.ClinicID.String()),
		zap.String("event_code", string(msg.EventCode)),
		zap.String("provider_message_id", messageID))

	return messageID, nil
}
