package notification

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/shared/types"
)

func whatsAppMessage() OutboundMessage {
	return OutboundMessage{
		ClinicID:  types.NewID(),
		To:        "+55 (11) 91234-5678",
		Body:      "Olá Maria, sua consulta é 10/03/2025 às 14:30.",
		EventCode: EventAppointmentCreated,
		Context:   fullContext(),
	}
}

// TestWhatsAppSendFreeForm tests the happy path inside the session
// window
func TestWhatsAppSendFreeForm(t *testing.T) {
	provider := NewMockChatProvider()
	sender := NewWhatsAppSender(provider, NewMetaTemplateMapper(DefaultMetaTemplateTable()), zap.NewNop())

	id, derr := sender.Send(context.Background(), whatsAppMessage())
	if derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}
	if id == "" {
		t.Error("Expected provider message ID")
	}

	if len(provider.Sent) != 1 {
		t.Fatalf("Expected 1 send, got %d", len(provider.Sent))
	}
	sent := provider.Sent[0]
	if sent.To != "5511912345678" {
		t.Errorf("Expected normalized phone, got %q", sent.To)
	}
	if sent.Template != "" {
		t.Errorf("Expected free-form send, got template %q", sent.Template)
	}
	if sent.Body != "Olá Maria, sua consulta é 10/03/2025 às 14:30." {
		t.Errorf("Unexpected body %q", sent.Body)
	}
}

// TestWhatsAppSessionWindowFallback tests that a closed session window
// reroutes the send through the approved template
func TestWhatsAppSessionWindowFallback(t *testing.T) {
	provider := NewMockChatProvider()
	provider.SessionClosed = true
	sender := NewWhatsAppSender(provider, NewMetaTemplateMapper(DefaultMetaTemplateTable()), zap.NewNop())

	id, derr := sender.Send(context.Background(), whatsAppMessage())
	if derr != nil {
		t.Fatalf("Expected fallback to succeed, got %v", derr)
	}
	if id == "" {
		t.Error("Expected provider message ID from template send")
	}

	if len(provider.Sent) != 1 {
		t.Fatalf("Expected 1 template send, got %d", len(provider.Sent))
	}
	sent := provider.Sent[0]
	if sent.Template != MetaTemplateAppointment {
		t.Errorf("Expected template %s, got %q", MetaTemplateAppointment, sent.Template)
	}
	if len(sent.Params) != 3 {
		t.Fatalf("Expected 3 params, got %d", len(sent.Params))
	}
	if sent.Params[0] != "Maria da Silva" || sent.Params[2] != "Clínica Boa Saúde" {
		t.Errorf("Unexpected params %v", sent.Params)
	}
}

// TestWhatsAppFallbackUnmappedCode tests the failure when the window is
// closed and the event has no approved template
func TestWhatsAppFallbackUnmappedCode(t *testing.T) {
	provider := NewMockChatProvider()
	provider.SessionClosed = true
	sender := NewWhatsAppSender(provider, NewMetaTemplateMapper(map[EventCode]MetaTemplateConfig{}), zap.NewNop())

	_, derr := sender.Send(context.Background(), whatsAppMessage())
	if derr == nil {
		t.Fatal("Expected error")
	}
	if derr.Kind != KindSendFailure {
		t.Errorf("Expected kind %s, got %s", KindSendFailure, derr.Kind)
	}
}

// TestWhatsAppMissingPhone tests recipients whose phone normalizes to
// nothing
func TestWhatsAppMissingPhone(t *testing.T) {
	sender := NewWhatsAppSender(NewMockChatProvider(), NewMetaTemplateMapper(DefaultMetaTemplateTable()), zap.NewNop())

	for _, to := range []string{"", "   ", "abc-def"} {
		msg := whatsAppMessage()
		msg.To = to

		_, derr := sender.Send(context.Background(), msg)
		if derr == nil {
			t.Fatalf("Expected error for phone %q", to)
		}
		if derr.Kind != KindMissingRecipientContact {
			t.Errorf("Expected kind %s for phone %q, got %s", KindMissingRecipientContact, to, derr.Kind)
		}
	}
}

// TestWhatsAppProviderFailure tests that a non-window provider error is
// a send failure, not a template fallback
func TestWhatsAppProviderFailure(t *testing.T) {
	provider := NewMockChatProvider()
	provider.FailWith = errors.New("provider down")
	sender := NewWhatsAppSender(provider, NewMetaTemplateMapper(DefaultMetaTemplateTable()), zap.NewNop())

	_, derr := sender.Send(context.Background(), whatsAppMessage())
	if derr == nil {
		t.Fatal("Expected error")
	}
	if derr.Kind != KindSendFailure {
		t.Errorf("Expected kind %s, got %s", KindSendFailure, derr.Kind)
	}
	if len(provider.Sent) != 0 {
		t.Errorf("Expected no sends, got %d", len(provider.Sent))
	}
}

// TestEmailSenderValidation tests the email sender's recipient and
// subject requirements
func TestEmailSenderValidation(t *testing.T) {
	provider := NewMockMailProvider()
	sender := NewEmailSender(provider, zap.NewNop())

	msg := OutboundMessage{
		ClinicID:  types.NewID(),
		To:        "",
		Subject:   "Assunto",
		Body:      "corpo",
		EventCode: EventAppointmentCreated,
	}
	if _, derr := sender.Send(context.Background(), msg); derr == nil || derr.Kind != KindMissingRecipientContact {
		t.Errorf("Expected missing recipient error, got %v", derr)
	}

	msg.To = "maria@example.com"
	msg.Subject = "  "
	if _, derr := sender.Send(context.Background(), msg); derr == nil || derr.Kind != KindSendFailure {
		t.Errorf("Expected send failure for empty subject, got %v", derr)
	}

	msg.Subject = "Assunto"
	id, derr := sender.Send(context.Background(), msg)
	if derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}
	if id == "" || len(provider.Sent) != 1 {
		t.Errorf("Expected 1 delivery, got id=%q sends=%d", id, len(provider.Sent))
	}
}
