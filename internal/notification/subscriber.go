package notification

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/shared/events"
	"github.com/clinicore/platform/internal/shared/types"
)

// busEventCodes maps bus event types to dispatch event codes. Bus
// events outside this table are ignored by the subscriber.
var busEventCodes = map[string]EventCode{
	"appointment.created":   EventAppointmentCreated,
	"appointment.updated":   EventAppointmentUpdated,
	"appointment.canceled":  EventAppointmentCanceled,
	"appointment.reminder":  EventAppointmentReminder,
	"form.linked":           EventFormLinked,
	"form.public_submitted": EventPublicFormSubmitted,
}

type busPayload struct {
	PatientID      *types.ID       `json:"patient_id,omitempty"`
	AppointmentID  *types.ID       `json:"appointment_id,omitempty"`
	PublicMetadata *PublicMetadata `json:"public_metadata,omitempty"`
}

// EventStore persists incoming events
type EventStore interface {
	Save(ctx context.Context, e *Event) error
}

// EnabledSettingsSource lists the channels enabled for an event
type EnabledSettingsSource interface {
	ListEnabled(ctx context.Context, clinicID types.ID, code EventCode) ([]ChannelSetting, error)
}

// Subscriber consumes appointment and form events from the bus and
// feeds them to the dispatcher on every enabled channel. After each
// dispatch it publishes a notification.dispatched event so downstream
// consumers can observe the outcome.
type Subscriber struct {
	bus        *events.Bus
	dispatcher *Dispatcher
	store      EventStore
	settings   EnabledSettingsSource
	log        *zap.Logger
}

// NewSubscriber creates a bus subscriber
func NewSubscriber(bus *events.Bus, dispatcher *Dispatcher, store EventStore, settings EnabledSettingsSource, log *zap.Logger) *Subscriber {
	return &Subscriber{
		bus:        bus,
		dispatcher: dispatcher,
		store:      store,
		settings:   settings,
		log:        log,
	}
}

// Start subscribes to the appointment and form event streams. It
// returns after the subscriptions are established; consumption runs in
// the background until ctx is canceled.
func (s *Subscriber) Start(ctx context.Context) error {
	if err := s.bus.Subscribe(ctx, "appointment.*", s.handle); err != nil {
		return err
	}
	return s.bus.Subscribe(ctx, "form.*", s.handle)
}

func (s *Subscriber) handle(ctx context.Context, busEvent events.Event) error {
	code, ok := busEventCodes[busEvent.Type]
	if !ok {
		return nil
	}

	var payload busPayload
	if err := json.Unmarshal(busEvent.Data, &payload); err != nil {
		s.log.Warn("malformed event payload, skipping",
			zap.String("type", busEvent.Type),
			zap.String("bus_event_id", busEvent.ID),
			zap.Error(err))
		return nil
	}

	event := &Event{
		ID:             busEventID(busEvent.ID),
		EventCode:      code,
		ClinicID:       busEvent.ClinicID,
		PatientID:      payload.PatientID,
		AppointmentID:  payload.AppointmentID,
		PublicMetadata: payload.PublicMetadata,
		CreatedAt:      busEvent.Timestamp,
	}

	if err := s.store.Save(ctx, event); err != nil {
		return err
	}

	enabled, err := s.settings.ListEnabled(ctx, event.ClinicID, code)
	if err != nil {
		return err
	}
	if len(enabled) == 0 {
		s.log.Debug("no channel enabled for event, nothing to dispatch",
			zap.String("event_code", string(code)),
			zap.String("clinic_id", event.ClinicID.String()))
		return nil
	}

	for _, setting := range enabled {
		result, derr := s.dispatcher.Dispatch(ctx, event, setting.Channel)
		s.publishOutcome(ctx, event, setting.Channel, result, derr)
	}

	return nil
}

func (s *Subscriber) publishOutcome(ctx context.Context, event *Event, ch Channel, result *DispatchResult, derr *DispatchError) {
	data := map[string]any{
		"event_id":   event.ID,
		"event_code": event.EventCode,
		"channel":    ch,
	}
	switch {
	case derr != nil:
		data["status"] = "failed"
		data["error_kind"] = derr.Kind
	case result.Pending():
		data["status"] = "pending"
		data["pending_id"] = result.PendingID
	default:
		data["status"] = "sent"
		data["delivery_id"] = result.DeliveryID
	}

	out, err := events.NewEvent("notification.dispatched", "notification", event.ClinicID, data)
	if err != nil {
		s.log.Warn("failed to build dispatched event", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, out); err != nil {
		s.log.Warn("failed to publish dispatched event",
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
	}
}

// busEventID reuses the bus event's UUID as the stored event's primary
// key so a redelivered bus message maps to the same row.
func busEventID(raw string) types.ID {
	if id, err := types.ParseID(raw); err == nil {
		return id
	}
	return types.NewID()
}
