package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/appointment"
	"github.com/clinicore/platform/internal/clinic"
	"github.com/clinicore/platform/internal/form"
	"github.com/clinicore/platform/internal/patient"
	"github.com/clinicore/platform/internal/shared/types"
)

// --- Fakes ---

type fakeSettings struct {
	settings map[string]*ChannelSetting
}

func settingKey(clinicID types.ID, code EventCode, ch Channel) string {
	return clinicID.String() + "/" + string(code) + "/" + string(ch)
}

func (f *fakeSettings) Find(ctx context.Context, clinicID types.ID, code EventCode, ch Channel) (*ChannelSetting, error) {
	return f.settings[settingKey(clinicID, code, ch)], nil
}

func (f *fakeSettings) ListEnabled(ctx context.Context, clinicID types.ID, code EventCode) ([]ChannelSetting, error) {
	var out []ChannelSetting
	for _, s := range f.settings {
		if s.ClinicID == clinicID && s.EventCode == code && s.Enabled {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeEvents struct {
	byID         map[types.ID]*Event
	processed    []types.ID
	acknowledged map[types.ID][]Channel
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		byID:         make(map[types.ID]*Event),
		acknowledged: make(map[types.ID][]Channel),
	}
}

func (f *fakeEvents) Save(ctx context.Context, e *Event) error {
	f.byID[e.ID] = e
	return nil
}

func (f *fakeEvents) FindByID(ctx context.Context, id types.ID) (*Event, error) {
	if e, ok := f.byID[id]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("event %s not found", id)
}

func (f *fakeEvents) MarkProcessed(ctx context.Context, id types.ID) error {
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeEvents) MarkAcknowledged(ctx context.Context, id types.ID, ch Channel) error {
	f.acknowledged[id] = append(f.acknowledged[id], ch)
	return nil
}

type fakePendingStore struct {
	created []*PendingMessage
	err     error
}

func (f *fakePendingStore) Create(ctx context.Context, m *PendingMessage) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, m)
	return nil
}

type fakeLogStore struct {
	entries []*MessageLogEntry
}

func (f *fakeLogStore) Append(ctx context.Context, e *MessageLogEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

type fakeSender struct {
	ch        Channel
	connected bool
	failWith  *DispatchError
	sent      []OutboundMessage
}

func (f *fakeSender) Channel() Channel { return f.ch }

func (f *fakeSender) Connected(ctx context.Context, clinicID types.ID) (bool, error) {
	return f.connected, nil
}

func (f *fakeSender) Send(ctx context.Context, msg OutboundMessage) (string, *DispatchError) {
	if f.failWith != nil {
		return "", f.failWith
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("prov-%d", len(f.sent)), nil
}

type fakePatients struct {
	patient *patient.Patient
	err     error
}

func (f *fakePatients) FindByID(ctx context.Context, id types.ID) (*patient.Patient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.patient, nil
}

type fakeAppointments struct {
	appointment *appointment.Appointment
	err         error
}

func (f *fakeAppointments) FindByID(ctx context.Context, id types.ID) (*appointment.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.appointment, nil
}

type fakeForms struct {
	instance *form.Instance
	err      error
}

func (f *fakeForms) FindFirstPendingByAppointment(ctx context.Context, appointmentID types.ID) (*form.Instance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.instance, nil
}

// --- Test environment ---

type dispatchEnv struct {
	clinicID types.ID
	event    *Event

	settings  *fakeSettings
	events    *fakeEvents
	pending   *fakePendingStore
	msgLog    *fakeLogStore
	email     *fakeSender
	whatsapp  *fakeSender
	patients  *fakePatients
	templates *fakeTemplates

	dispatcher *Dispatcher
}

func newDispatchEnv(t *testing.T) *dispatchEnv {
	t.Helper()

	clinicID := types.NewID()
	patientID := types.NewID()
	appointmentID := types.NewID()

	p := &patient.Patient{
		ID:       patientID,
		ClinicID: clinicID,
		FullName: "Maria Silva",
		Email:    "maria@example.com",
		Phone:    "+55 (11) 91234-5678",
	}

	appt := &appointment.Appointment{
		ID:          appointmentID,
		ClinicID:    clinicID,
		PatientID:   patientID,
		ScheduledAt: time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
		Doctor:      &appointment.Doctor{ID: types.NewID(), FullName: "Dr. Carlos Mendes"},
	}

	env := &dispatchEnv{
		clinicID: clinicID,
		settings: &fakeSettings{settings: map[string]*ChannelSetting{}},
		events:   newFakeEvents(),
		pending:  &fakePendingStore{},
		msgLog:   &fakeLogStore{},
		email:    &fakeSender{ch: ChannelEmail, connected: true},
		whatsapp: &fakeSender{ch: ChannelWhatsApp, connected: true},
		patients: &fakePatients{patient: p},
	}

	env.event = &Event{
		ID:            types.NewID(),
		EventCode:     EventAppointmentCreated,
		ClinicID:      clinicID,
		PatientID:     &patientID,
		AppointmentID: &appointmentID,
		CreatedAt:     time.Now().UTC(),
	}
	env.events.byID[env.event.ID] = env.event

	env.setSetting(EventAppointmentCreated, ChannelEmail, SendModeAutomatic)

	env.templates = &fakeTemplates{
		byID: map[types.ID]*Template{},
		defaults: map[string]*Template{
			"appointment_created/email":    defaultTemplate(EventAppointmentCreated, ChannelEmail),
			"appointment_created/whatsapp": defaultTemplate(EventAppointmentCreated, ChannelWhatsApp),
		},
	}
	clinics := &fakeClinics{clinic: &clinic.Clinic{ID: clinicID, Name: "Clínica Boa Saúde"}}

	log := zap.NewNop()
	builder := NewContextBuilder(
		env.patients,
		&fakeAppointments{appointment: appt},
		clinics,
		&fakeForms{},
		"https://forms.clinicore.app",
		log,
	)

	env.dispatcher = NewDispatcher(
		env.settings, env.events, env.pending, env.msgLog,
		NewResolver(env.templates, clinics, log),
		builder,
		NewEngine(),
		map[Channel]Sender{ChannelEmail: env.email, ChannelWhatsApp: env.whatsapp},
		nil,
		log,
	)

	return env
}

func (e *dispatchEnv) setSetting(code EventCode, ch Channel, mode SendMode) {
	e.settings.settings[settingKey(e.clinicID, code, ch)] = &ChannelSetting{
		ID:        types.NewID(),
		ClinicID:  e.clinicID,
		EventCode: code,
		Channel:   ch,
		Enabled:   true,
		SendMode:  mode,
	}
}

// --- Tests ---

// TestDispatchAutomaticEmail tests the full automatic path: rendered
// send, audit entry, processed stamp
func TestDispatchAutomaticEmail(t *testing.T) {
	env := newDispatchEnv(t)

	result, derr := env.dispatcher.Dispatch(context.Background(), env.event, ChannelEmail)
	if derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}
	if result.DeliveryID == "" || result.Pending() {
		t.Errorf("Expected delivery ID, got %+v", result)
	}

	if len(env.email.sent) != 1 {
		t.Fatalf("Expected 1 send, got %d", len(env.email.sent))
	}
	msg := env.email.sent[0]
	if msg.To != "maria@example.com" {
		t.Errorf("Expected recipient email, got %q", msg.To)
	}
	if msg.Subject != "Consulta confirmada, Maria Silva" {
		t.Errorf("Unexpected subject %q", msg.Subject)
	}
	if msg.Body != "Sua consulta é em 10/03/2025 às 14:30." {
		t.Errorf("Unexpected body %q", msg.Body)
	}

	if len(env.msgLog.entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(env.msgLog.entries))
	}
	entry := env.msgLog.entries[0]
	if entry.ProviderMessageID != result.DeliveryID {
		t.Errorf("Expected log entry to carry provider ID %q, got %q", result.DeliveryID, entry.ProviderMessageID)
	}
	if entry.TemplateName != "Padrão do sistema" {
		t.Errorf("Expected template name in log, got %q", entry.TemplateName)
	}

	if len(env.events.processed) != 1 {
		t.Errorf("Expected event marked processed once, got %d", len(env.events.processed))
	}
}

// TestDispatchManualQueues tests that manual mode renders and queues
// without sending
func TestDispatchManualQueues(t *testing.T) {
	env := newDispatchEnv(t)
	env.setSetting(EventAppointmentCreated, ChannelEmail, SendModeManual)

	result, derr := env.dispatcher.Dispatch(context.Background(), env.event, ChannelEmail)
	if derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}
	if !result.Pending() {
		t.Fatal("Expected pending result")
	}

	if len(env.email.sent) != 0 {
		t.Errorf("Expected no sends, got %d", len(env.email.sent))
	}
	if len(env.pending.created) != 1 {
		t.Fatalf("Expected 1 pending message, got %d", len(env.pending.created))
	}

	pm := env.pending.created[0]
	if pm.Body != "Sua consulta é em 10/03/2025 às 14:30." {
		t.Errorf("Expected rendered body in queue, got %q", pm.Body)
	}
	if pm.Recipient != "maria@example.com" {
		t.Errorf("Expected recipient stored, got %q", pm.Recipient)
	}
	if pm.Status != PendingStatusPending {
		t.Errorf("Expected pending status, got %s", pm.Status)
	}
	if pm.Context == nil || pm.Context.Patient == nil {
		t.Error("Expected context snapshot on pending message")
	}
}

// TestDispatchErrorKinds tests the failure taxonomy stage by stage
func TestDispatchErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		prep func(env *dispatchEnv)
		ch   Channel
		want ErrorKind
	}{
		{
			name: "channel not configured",
			prep: func(env *dispatchEnv) {},
			ch:   ChannelWhatsApp,
			want: KindConfiguration,
		},
		{
			name: "channel disabled",
			prep: func(env *dispatchEnv) {
				env.settings.settings[settingKey(env.clinicID, EventAppointmentCreated, ChannelEmail)].Enabled = false
			},
			ch:   ChannelEmail,
			want: KindConfiguration,
		},
		{
			name: "provider not connected",
			prep: func(env *dispatchEnv) { env.email.connected = false },
			ch:   ChannelEmail,
			want: KindIntegrationNotConnected,
		},
		{
			name: "no template",
			prep: func(env *dispatchEnv) {
				env.event.EventCode = EventFormLinked
				env.setSetting(EventFormLinked, ChannelEmail, SendModeAutomatic)
			},
			ch:   ChannelEmail,
			want: KindTemplateNotFound,
		},
		{
			name: "missing email",
			prep: func(env *dispatchEnv) { env.patients.patient.Email = "" },
			ch:   ChannelEmail,
			want: KindMissingRecipientContact,
		},
		{
			name: "provider failure",
			prep: func(env *dispatchEnv) {
				env.email.failWith = newDispatchError(KindSendFailure, "smtp refused")
			},
			ch:   ChannelEmail,
			want: KindSendFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newDispatchEnv(t)
			tt.prep(env)

			_, derr := env.dispatcher.Dispatch(context.Background(), env.event, tt.ch)
			if derr == nil {
				t.Fatal("Expected dispatch error")
			}
			if derr.Kind != tt.want {
				t.Errorf("Expected kind %s, got %s", tt.want, derr.Kind)
			}
			if len(env.msgLog.entries) != 0 {
				t.Errorf("Expected no log entries on failure, got %d", len(env.msgLog.entries))
			}
		})
	}
}

// TestDispatchTwiceSendsTwice tests that there is no dispatch
// deduplication
func TestDispatchTwiceSendsTwice(t *testing.T) {
	env := newDispatchEnv(t)

	for i := 0; i < 2; i++ {
		if _, derr := env.dispatcher.Dispatch(context.Background(), env.event, ChannelEmail); derr != nil {
			t.Fatalf("Expected no error on dispatch %d, got %v", i+1, derr)
		}
	}

	if len(env.email.sent) != 2 {
		t.Errorf("Expected 2 sends, got %d", len(env.email.sent))
	}
	if len(env.msgLog.entries) != 2 {
		t.Errorf("Expected 2 log entries, got %d", len(env.msgLog.entries))
	}
}

func TestDispatchManualTwiceQueuesTwice(t *testing.T) {
	env := newDispatchEnv(t)
	env.setSetting(EventAppointmentCreated, ChannelEmail, SendModeManual)

	for i := 0; i < 2; i++ {
		result, derr := env.dispatcher.Dispatch(context.Background(), env.event, ChannelEmail)
		if derr != nil {
			t.Fatalf("Expected no error on dispatch %d, got %v", i+1, derr)
		}
		if !result.Pending() {
			t.Fatalf("Expected pending result on dispatch %d", i+1)
		}
	}

	if len(env.pending.created) != 2 {
		t.Fatalf("Expected 2 pending messages, got %d", len(env.pending.created))
	}
	if env.pending.created[0].ID == env.pending.created[1].ID {
		t.Error("Expected distinct pending message IDs")
	}
	if len(env.email.sent) != 0 {
		t.Errorf("Expected no sends, got %d", len(env.email.sent))
	}
	if len(env.msgLog.entries) != 0 {
		t.Errorf("Expected no log entries before approval, got %d", len(env.msgLog.entries))
	}
}

// TestDispatchPublicEventAcknowledgment tests that public-submission
// events get per-channel acknowledgment instead of a processed stamp
func TestDispatchPublicEventAcknowledgment(t *testing.T) {
	env := newDispatchEnv(t)
	env.setSetting(EventPublicFormSubmitted, ChannelEmail, SendModeAutomatic)

	env.templates.defaults["public_form_submitted/email"] = defaultTemplate(EventPublicFormSubmitted, ChannelEmail)

	public := &Event{
		ID:        types.NewID(),
		EventCode: EventPublicFormSubmitted,
		ClinicID:  env.clinicID,
		PublicMetadata: &PublicMetadata{
			Name:  "João Pereira",
			Email: "joao@example.com",
		},
		CreatedAt: time.Now().UTC(),
	}
	env.events.byID[public.ID] = public

	if _, derr := env.dispatcher.Dispatch(context.Background(), public, ChannelEmail); derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}

	if len(env.events.processed) != 0 {
		t.Errorf("Expected no processed stamp for public event, got %d", len(env.events.processed))
	}
	acked := env.events.acknowledged[public.ID]
	if len(acked) != 1 || acked[0] != ChannelEmail {
		t.Errorf("Expected email acknowledgment, got %v", acked)
	}

	if env.email.sent[0].To != "joao@example.com" {
		t.Errorf("Expected submitter email as recipient, got %q", env.email.sent[0].To)
	}
}

// TestPreviewMatchesDispatch tests preview parity: the preview body is
// byte-identical to what a dispatch sends
func TestPreviewMatchesDispatch(t *testing.T) {
	env := newDispatchEnv(t)

	preview, derr := env.dispatcher.Preview(context.Background(), env.clinicID, env.event.ID, ChannelEmail)
	if derr != nil {
		t.Fatalf("Expected no preview error, got %v", derr)
	}

	if _, derr := env.dispatcher.Dispatch(context.Background(), env.event, ChannelEmail); derr != nil {
		t.Fatalf("Expected no dispatch error, got %v", derr)
	}

	sent := env.email.sent[0]
	if preview.Body != sent.Body {
		t.Errorf("Preview body %q differs from dispatched body %q", preview.Body, sent.Body)
	}
	if preview.Subject != sent.Subject {
		t.Errorf("Preview subject %q differs from dispatched subject %q", preview.Subject, sent.Subject)
	}
	if preview.Recipient != sent.To {
		t.Errorf("Preview recipient %q differs from dispatched recipient %q", preview.Recipient, sent.To)
	}

	if len(env.msgLog.entries) != 1 {
		t.Errorf("Expected preview to leave no log entry, got %d entries", len(env.msgLog.entries))
	}
}

// TestPreviewWrongClinic tests tenant scoping on preview
func TestPreviewWrongClinic(t *testing.T) {
	env := newDispatchEnv(t)

	_, derr := env.dispatcher.Preview(context.Background(), types.NewID(), env.event.ID, ChannelEmail)
	if derr == nil {
		t.Fatal("Expected error for foreign clinic")
	}
	if derr.Kind != KindConfiguration {
		t.Errorf("Expected kind %s, got %s", KindConfiguration, derr.Kind)
	}
}
