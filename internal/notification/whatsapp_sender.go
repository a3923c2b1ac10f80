package notification

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/shared/metrics"
	"github.com/clinicore/platform/internal/shared/types"
)

// WhatsAppSender delivers rendered messages through the chat provider.
// A free-form body is only accepted inside the 24-hour window following
// the customer's last inbound message; that window is a provider-side
// fact, so the sender always tries free-form first and falls back to
// the approved-template path when the provider rejects it.
type WhatsAppSender struct {
	provider ChatProvider
	mapper   *MetaTemplateMapper
	log      *zap.Logger
}

// NewWhatsAppSender creates a WhatsApp sender
func NewWhatsAppSender(provider ChatProvider, mapper *MetaTemplateMapper, log *zap.Logger) *WhatsAppSender {
	return &WhatsAppSender{provider: provider, mapper: mapper, log: log}
}

// Channel returns the whatsapp channel
func (s *WhatsAppSender) Channel() Channel {
	return ChannelWhatsApp
}

// Connected probes whether the chat provider account is linked
func (s *WhatsAppSender) Connected(ctx context.Context, clinicID types.ID) (bool, error) {
	return s.provider.Connected(ctx, clinicID)
}

// Send delivers a chat message. The recipient phone must normalize to
// a non-empty digits-only string.
func (s *WhatsAppSender) Send(ctx context.Context, msg OutboundMessage) (string, *DispatchError) {
	to := normalizePhone(msg.To)
	if to == "" {
		return "", newDispatchError(KindMissingRecipientContact, "recipient has no phone number")
	}

	start := time.Now()
	messageID, err := s.provider.SendText(ctx, msg.ClinicID, to, msg.Body)
	metrics.RecordProviderSend(string(ChannelWhatsApp), time.Since(start))
	if err == nil {
		s.log.Info("whatsapp message sent",
			zap.String("clinic_id", msg.ClinicID.String()),
			zap.String("event_code", string(msg.EventCode)),
			zap.String("provider_message_id", messageID))
		return messageID, nil
	}

	if !errors.Is(err, ErrOutsideSessionWindow) {
		return "", wrapDispatchError(KindSendFailure, "chat provider rejected the message", err)
	}

	return s.sendApprovedTemplate(ctx, msg, to)
}

// sendApprovedTemplate is the fallback path when the session window is
// closed: the event's approved template with positional parameters.
func (s *WhatsAppSender) sendApprovedTemplate(ctx context.Context, msg OutboundMessage, to string) (string, *DispatchError) {
	params, err := s.mapper.Params(msg.EventCode, msg.Context)
	if err != nil {
		return "", wrapDispatchError(KindSendFailure,
			"session window closed and no approved template for this event", err)
	}

	start := time.Now()
	messageID, err := s.provider.SendTemplate(ctx, msg.ClinicID, to, params.Template, params.Params)
	metrics.RecordProviderSend(string(ChannelWhatsApp), time.Since(start))
	if err != nil {
		return "", wrapDispatchError(KindSendFailure, "chat provider rejected the approved template", err)
	}

	s.log.Info("whatsapp approved template sent",
		zap.String("clinic_id", msg.ClinicID.String()),
		zap.String("event_code", string(msg.EventCode)),
		zap.String("template", string(params.Template)),
		zap.String("provider_message_id", messageID))

	return messageID, nil
}

// normalizePhone strips every non-digit character
func normalizePhone(phone string) string {
	out := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			out = append(out, phone[i])
		}
	}
	return string(out)
}
