package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/clinic"
	"github.com/clinicore/platform/internal/shared/types"
)

type fakeTemplates struct {
	byID     map[types.ID]*Template
	defaults map[string]*Template
	err      error
}

func (f *fakeTemplates) FindByID(ctx context.Context, id types.ID) (*Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[id], nil
}

func (f *fakeTemplates) FindSystemDefault(ctx context.Context, code EventCode, ch Channel) (*Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.defaults[string(code)+"/"+string(ch)], nil
}

type fakeClinics struct {
	clinic *clinic.Clinic
	err    error
}

func (f *fakeClinics) FindByID(ctx context.Context, id types.ID) (*clinic.Clinic, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clinic, nil
}

func defaultTemplate(code EventCode, ch Channel) *Template {
	return &Template{
		ID:        types.NewID(),
		EventCode: code,
		Channel:   ch,
		Name:      "Padrão do sistema",
		Subject:   "Consulta confirmada, {{nome_paciente}}",
		Body:      "Sua consulta é em {{data_hora_consulta}}.",
		IsDefault: true,
		Active:    true,
	}
}

// TestResolvePrecedence tests that an active custom template wins over
// the system default
func TestResolvePrecedence(t *testing.T) {
	clinicID := types.NewID()
	custom := &Template{
		ID:        types.NewID(),
		ClinicID:  &clinicID,
		EventCode: EventAppointmentCreated,
		Channel:   ChannelWhatsApp,
		Name:      "Personalizado",
		Body:      "Mensagem personalizada",
		Active:    true,
	}

	templates := &fakeTemplates{
		byID: map[types.ID]*Template{custom.ID: custom},
		defaults: map[string]*Template{
			"appointment_created/whatsapp": defaultTemplate(EventAppointmentCreated, ChannelWhatsApp),
		},
	}
	resolver := NewResolver(templates, &fakeClinics{clinic: &clinic.Clinic{Name: "Clínica"}}, zap.NewNop())

	got, derr := resolver.Resolve(context.Background(), clinicID, EventAppointmentCreated, ChannelWhatsApp, &custom.ID)
	if derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}
	if got.Name != "Personalizado" {
		t.Errorf("Expected custom template, got %q", got.Name)
	}
}

// TestResolveInactiveFallsBack tests that an inactive referenced
// template behaves as if it were not referenced
func TestResolveInactiveFallsBack(t *testing.T) {
	clinicID := types.NewID()
	inactive := &Template{
		ID:        types.NewID(),
		ClinicID:  &clinicID,
		EventCode: EventAppointmentCreated,
		Channel:   ChannelWhatsApp,
		Name:      "Desativado",
		Body:      "antigo",
		Active:    false,
	}

	templates := &fakeTemplates{
		byID: map[types.ID]*Template{inactive.ID: inactive},
		defaults: map[string]*Template{
			"appointment_created/whatsapp": defaultTemplate(EventAppointmentCreated, ChannelWhatsApp),
		},
	}
	resolver := NewResolver(templates, &fakeClinics{clinic: &clinic.Clinic{}}, zap.NewNop())

	got, derr := resolver.Resolve(context.Background(), clinicID, EventAppointmentCreated, ChannelWhatsApp, &inactive.ID)
	if derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}
	if !got.IsDefault {
		t.Errorf("Expected fallback to system default, got %q", got.Name)
	}
}

// TestResolveNotFound tests the error kind when no template exists
func TestResolveNotFound(t *testing.T) {
	templates := &fakeTemplates{byID: map[types.ID]*Template{}, defaults: map[string]*Template{}}
	resolver := NewResolver(templates, &fakeClinics{clinic: &clinic.Clinic{}}, zap.NewNop())

	_, derr := resolver.Resolve(context.Background(), types.NewID(), EventFormLinked, ChannelEmail, nil)
	if derr == nil {
		t.Fatal("Expected error")
	}
	if derr.Kind != KindTemplateNotFound {
		t.Errorf("Expected kind %s, got %s", KindTemplateNotFound, derr.Kind)
	}
}

// TestResolveEmailFragments tests that clinic header and footer wrap
// email bodies only
func TestResolveEmailFragments(t *testing.T) {
	clinics := &fakeClinics{clinic: &clinic.Clinic{
		Name:        "Clínica Boa Saúde",
		EmailHeader: "<header>{{nome_clinica}}</header>",
		EmailFooter: "<footer>{{telefone_clinica}}</footer>",
	}}

	templates := &fakeTemplates{
		byID: map[types.ID]*Template{},
		defaults: map[string]*Template{
			"appointment_created/email":    defaultTemplate(EventAppointmentCreated, ChannelEmail),
			"appointment_created/whatsapp": defaultTemplate(EventAppointmentCreated, ChannelWhatsApp),
		},
	}
	resolver := NewResolver(templates, clinics, zap.NewNop())

	email, derr := resolver.Resolve(context.Background(), types.NewID(), EventAppointmentCreated, ChannelEmail, nil)
	if derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}
	if !strings.HasPrefix(email.Body, "<header>") || !strings.HasSuffix(email.Body, "</footer>") {
		t.Errorf("Expected header and footer around email body, got %q", email.Body)
	}

	wa, derr := resolver.Resolve(context.Background(), types.NewID(), EventAppointmentCreated, ChannelWhatsApp, nil)
	if derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}
	if strings.Contains(wa.Body, "<header>") {
		t.Errorf("Expected whatsapp body without fragments, got %q", wa.Body)
	}
}

// TestResolveDoesNotMutate tests that fragment wrapping copies the
// template instead of mutating the stored one
func TestResolveDoesNotMutate(t *testing.T) {
	stored := defaultTemplate(EventAppointmentCreated, ChannelEmail)
	originalBody := stored.Body

	templates := &fakeTemplates{
		byID:     map[types.ID]*Template{},
		defaults: map[string]*Template{"appointment_created/email": stored},
	}
	clinics := &fakeClinics{clinic: &clinic.Clinic{EmailHeader: "H", EmailFooter: "F"}}
	resolver := NewResolver(templates, clinics, zap.NewNop())

	if _, derr := resolver.Resolve(context.Background(), types.NewID(), EventAppointmentCreated, ChannelEmail, nil); derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}
	if stored.Body != originalBody {
		t.Errorf("Expected stored template untouched, got %q", stored.Body)
	}
}

// TestResolveClinicLookupFailure tests degradation to the bare body
// when the clinic record cannot be loaded
func TestResolveClinicLookupFailure(t *testing.T) {
	templates := &fakeTemplates{
		byID:     map[types.ID]*Template{},
		defaults: map[string]*Template{"appointment_created/email": defaultTemplate(EventAppointmentCreated, ChannelEmail)},
	}
	clinics := &fakeClinics{err: errors.New("connection refused")}
	resolver := NewResolver(templates, clinics, zap.NewNop())

	got, derr := resolver.Resolve(context.Background(), types.NewID(), EventAppointmentCreated, ChannelEmail, nil)
	if derr != nil {
		t.Fatalf("Expected no error, got %v", derr)
	}
	if strings.Contains(got.Body, "header") {
		t.Errorf("Expected bare body, got %q", got.Body)
	}
}
