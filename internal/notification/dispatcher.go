package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/shared/metrics"
	"github.com/clinicore/platform/internal/shared/types"
)

// SettingsSource resolves per-clinic channel configuration
type SettingsSource interface {
	Find(ctx context.Context, clinicID types.ID, code EventCode, ch Channel) (*ChannelSetting, error)
}

// EventSource resolves events and records their processing state
type EventSource interface {
	FindByID(ctx context.Context, id types.ID) (*Event, error)
	MarkProcessed(ctx context.Context, id types.ID) error
	MarkAcknowledged(ctx context.Context, id types.ID, ch Channel) error
}

// PendingStore persists messages awaiting manual approval
type PendingStore interface {
	Create(ctx context.Context, m *PendingMessage) error
}

// LogStore appends completed sends to the audit log
type LogStore interface {
	Append(ctx context.Context, e *MessageLogEntry) error
}

// Dispatcher runs an event through the stage pipeline for one channel:
// configuration check, integration check, template resolution, context
// build, render, then mode branch into immediate send or pending queue.
// Each dispatch is independent; replaying the same event sends again.
type Dispatcher struct {
	settings SettingsSource
	events   EventSource
	pending  PendingStore
	msgLog   LogStore

	resolver *Resolver
	builder  *ContextBuilder
	engine   *Engine
	senders  map[Channel]Sender
	status   *StatusCache

	log *zap.Logger
}

// NewDispatcher creates a dispatcher over the given channel senders
func NewDispatcher(
	settings SettingsSource,
	events EventSource,
	pending PendingStore,
	msgLog LogStore,
	resolver *Resolver,
	builder *ContextBuilder,
	engine *Engine,
	senders map[Channel]Sender,
	status *StatusCache,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		settings: settings,
		events:   events,
		pending:  pending,
		msgLog:   msgLog,
		resolver: resolver,
		builder:  builder,
		engine:   engine,
		senders:  senders,
		status:   status,
		log:      log,
	}
}

// Dispatch processes one event on one channel. The returned result
// carries either the provider delivery ID (automatic mode) or the
// pending message ID (manual mode).
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event, ch Channel) (*DispatchResult, *DispatchError) {
	result, derr := d.dispatch(ctx, event, ch)
	if derr != nil {
		metrics.RecordDispatch(string(ch), string(event.EventCode), string(derr.Kind))
		d.log.Warn("dispatch failed",
			zap.String("event_id", event.ID.String()),
			zap.String("event_code", string(event.EventCode)),
			zap.String("channel", string(ch)),
			zap.String("kind", string(derr.Kind)),
			zap.Error(derr))
		return nil, derr
	}

	outcome := "sent"
	if result.Pending() {
		outcome = "pending"
	}
	metrics.RecordDispatch(string(ch), string(event.EventCode), outcome)

	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, event *Event, ch Channel) (*DispatchResult, *DispatchError) {
	if !event.EventCode.Valid() {
		return nil, newDispatchError(KindConfiguration, "unknown event code "+string(event.EventCode))
	}

	setting, err := d.settings.Find(ctx, event.ClinicID, event.EventCode, ch)
	if err != nil {
		return nil, wrapDispatchError(KindConfiguration, "failed to load channel setting", err)
	}
	if setting == nil || !setting.Enabled {
		return nil, newDispatchError(KindConfiguration,
			"channel "+string(ch)+" not enabled for event "+string(event.EventCode))
	}

	sender, ok := d.senders[ch]
	if !ok {
		return nil, newDispatchError(KindIntegrationNotConnected, "no sender registered for channel "+string(ch))
	}

	connected, err := d.status.Connected(ctx, event.ClinicID, ch, func(ctx context.Context) (bool, error) {
		return sender.Connected(ctx, event.ClinicID)
	})
	if err != nil {
		return nil, wrapDispatchError(KindIntegrationNotConnected, "provider status probe failed", err)
	}
	if !connected {
		return nil, newDispatchError(KindIntegrationNotConnected,
			string(ch)+" provider not connected for clinic")
	}

	tmpl, derr := d.resolver.Resolve(ctx, event.ClinicID, event.EventCode, ch, setting.TemplateID)
	if derr != nil {
		return nil, derr
	}

	vc := d.builder.Build(ctx, event)

	recipient, derr := recipientFor(ch, vc)
	if derr != nil {
		return nil, derr
	}

	body := d.engine.Render(tmpl.Body, vc)
	subject := ""
	if ch == ChannelEmail {
		subject = d.engine.Render(tmpl.Subject, vc)
	}

	if setting.SendMode == SendModeManual {
		return d.queuePending(ctx, event, ch, tmpl, vc, recipient, subject, body)
	}

	msg := OutboundMessage{
		ClinicID:  event.ClinicID,
		To:        recipient,
		Subject:   subject,
		Body:      body,
		EventCode: event.EventCode,
		Context:   vc,
	}

	providerID, derr := sender.Send(ctx, msg)
	if derr != nil {
		return nil, derr
	}

	d.recordDelivery(ctx, event, ch, tmpl.Name, providerID)
	d.finalize(ctx, event, ch)

	return &DispatchResult{DeliveryID: providerID}, nil
}

func recipientFor(ch Channel, vc *VariableContext) (string, *DispatchError) {
	if vc.Patient == nil {
		return "", newDispatchError(KindMissingRecipientContact, "no recipient for dispatch")
	}
	switch ch {
	case ChannelEmail:
		if vc.Patient.Email == "" {
			return "", newDispatchError(KindMissingRecipientContact, "recipient has no email address")
		}
		return vc.Patient.Email, nil
	case ChannelWhatsApp:
		if vc.Patient.Phone == "" {
			return "", newDispatchError(KindMissingRecipientContact, "recipient has no phone number")
		}
		return vc.Patient.Phone, nil
	}
	return "", newDispatchError(KindConfiguration, "unknown channel "+string(ch))
}

func (d *Dispatcher) queuePending(
	ctx context.Context,
	event *Event,
	ch Channel,
	tmpl *Template,
	vc *VariableContext,
	recipient, subject, body string,
) (*DispatchResult, *DispatchError) {
	eventID := event.ID
	pm := &PendingMessage{
		ID:            types.NewID(),
		ClinicID:      event.ClinicID,
		PatientID:     event.PatientID,
		AppointmentID: event.AppointmentID,
		EventID:       &eventID,
		EventCode:     event.EventCode,
		Channel:       ch,
		TemplateName:  tmpl.Name,
		Recipient:     recipient,
		Subject:       subject,
		Body:          body,
		Context:       vc,
		Status:        PendingStatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := d.pending.Create(ctx, pm); err != nil {
		return nil, wrapDispatchError(KindSendFailure, "failed to queue pending message", err)
	}

	metrics.RecordPendingCreated()
	d.finalize(ctx, event, ch)

	d.log.Info("message queued for approval",
		zap.String("pending_id", pm.ID.String()),
		zap.String("event_code", string(event.EventCode)),
		zap.String("channel", string(ch)))

	return &DispatchResult{PendingID: pm.ID}, nil
}

// recordDelivery appends to the message log. An append failure after a
// successful send is logged loudly rather than surfaced, the message is
// already out.
func (d *Dispatcher) recordDelivery(ctx context.Context, event *Event, ch Channel, templateName, providerID string) {
	entry := &MessageLogEntry{
		ID:                types.NewID(),
		ClinicID:          event.ClinicID,
		PatientID:         event.PatientID,
		AppointmentID:     event.AppointmentID,
		EventCode:         event.EventCode,
		Channel:           ch,
		TemplateName:      templateName,
		ProviderMessageID: providerID,
		SentAt:            time.Now().UTC(),
	}

	if err := d.msgLog.Append(ctx, entry); err != nil {
		d.log.Error("message delivered but log append failed",
			zap.String("event_id", event.ID.String()),
			zap.String("channel", string(ch)),
			zap.String("provider_message_id", providerID),
			zap.Error(err))
		return
	}

	metrics.RecordMessageLogged(string(ch), string(event.EventCode))
}

// finalize stamps the event's processing state. Public-submission
// events track acknowledgment per channel; everything else gets a
// single processed stamp.
func (d *Dispatcher) finalize(ctx context.Context, event *Event, ch Channel) {
	var err error
	if event.IsPublic() {
		err = d.events.MarkAcknowledged(ctx, event.ID, ch)
	} else {
		err = d.events.MarkProcessed(ctx, event.ID)
	}
	if err != nil {
		d.log.Warn("failed to stamp event processing state",
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
	}
}

// PreviewResult is the rendered output of a dry-run dispatch
type PreviewResult struct {
	Channel      Channel          `json:"channel"`
	TemplateName string           `json:"template_name"`
	Recipient    string           `json:"recipient,omitempty"`
	Subject      string           `json:"subject,omitempty"`
	Body         string           `json:"body"`
	Context      *VariableContext `json:"context,omitempty"`
}

// Preview renders an event through the same template resolution,
// context build and substitution path as Dispatch, without touching the
// provider, the pending queue or the message log. What preview shows is
// what a dispatch would send.
func (d *Dispatcher) Preview(ctx context.Context, clinicID, eventID types.ID, ch Channel) (*PreviewResult, *DispatchError) {
	event, err := d.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, wrapDispatchError(KindConfiguration, "failed to load event", err)
	}
	if event.ClinicID != clinicID {
		return nil, newDispatchError(KindConfiguration, "event does not belong to clinic")
	}

	var overrideID *types.ID
	setting, err := d.settings.Find(ctx, event.ClinicID, event.EventCode, ch)
	if err != nil {
		return nil, wrapDispatchError(KindConfiguration, "failed to load channel setting", err)
	}
	if setting != nil {
		overrideID = setting.TemplateID
	}

	tmpl, derr := d.resolver.Resolve(ctx, event.ClinicID, event.EventCode, ch, overrideID)
	if derr != nil {
		return nil, derr
	}

	vc := d.builder.Build(ctx, event)

	recipient := ""
	if vc.Patient != nil {
		switch ch {
		case ChannelEmail:
			recipient = vc.Patient.Email
		case ChannelWhatsApp:
			recipient = vc.Patient.Phone
		}
	}

	result := &PreviewResult{
		Channel:      ch,
		TemplateName: tmpl.Name,
		Recipient:    recipient,
		Body:         d.engine.Render(tmpl.Body, vc),
		Context:      vc,
	}
	if ch == ChannelEmail {
		result.Subject = d.engine.Render(tmpl.Subject, vc)
	}

	return result, nil
}
