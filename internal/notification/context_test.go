package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/appointment"
	"github.com/clinicore/platform/internal/clinic"
	"github.com/clinicore/platform/internal/form"
	"github.com/clinicore/platform/internal/patient"
	"github.com/clinicore/platform/internal/shared/types"
)

func builderFixtures() (*fakePatients, *fakeAppointments, *fakeClinics, *fakeForms, *Event) {
	clinicID := types.NewID()
	patientID := types.NewID()
	appointmentID := types.NewID()

	patients := &fakePatients{patient: &patient.Patient{
		ID:       patientID,
		ClinicID: clinicID,
		FullName: "Maria da Silva",
		Email:    "maria@example.com",
		Phone:    "+55 11 91234-5678",
	}}

	appointments := &fakeAppointments{appointment: &appointment.Appointment{
		ID:          appointmentID,
		ClinicID:    clinicID,
		PatientID:   patientID,
		ScheduledAt: time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
		Doctor:      &appointment.Doctor{ID: types.NewID(), FullName: "Dr. Carlos Mendes"},
		Procedure: &appointment.Procedure{
			ID:                 types.NewID(),
			Name:               "Endoscopia",
			FastingRequirement: "8 horas",
		},
	}}

	clinics := &fakeClinics{clinic: &clinic.Clinic{
		ID:   clinicID,
		Name: "Clínica Boa Saúde",
	}}

	forms := &fakeForms{instance: &form.Instance{
		ID:           types.NewID(),
		ClinicID:     clinicID,
		TemplateName: "Anamnese",
		LinkToken:    "abc123",
	}}

	event := &Event{
		ID:            types.NewID(),
		EventCode:     EventAppointmentCreated,
		ClinicID:      clinicID,
		PatientID:     &patientID,
		AppointmentID: &appointmentID,
		CreatedAt:     time.Now().UTC(),
	}

	return patients, appointments, clinics, forms, event
}

// TestContextBuildFull tests every section populated from its source
func TestContextBuildFull(t *testing.T) {
	patients, appointments, clinics, forms, event := builderFixtures()
	b := NewContextBuilder(patients, appointments, clinics, forms, "https://forms.clinicore.app", zap.NewNop())

	vc := b.Build(context.Background(), event)

	if vc.Patient == nil || vc.Patient.FullName != "Maria da Silva" || vc.Patient.FirstName != "Maria" {
		t.Errorf("Unexpected patient section %+v", vc.Patient)
	}
	if vc.Appointment == nil || vc.Appointment.DoctorName != "Dr. Carlos Mendes" {
		t.Errorf("Unexpected appointment section %+v", vc.Appointment)
	}
	if vc.Appointment.FastingRequirement != "8 horas" {
		t.Errorf("Expected procedure fields flattened, got %+v", vc.Appointment)
	}
	if vc.Form == nil || vc.Form.Link != "https://forms.clinicore.app/f/abc123" {
		t.Errorf("Unexpected form section %+v", vc.Form)
	}
	if vc.Clinic == nil || vc.Clinic.Name != "Clínica Boa Saúde" {
		t.Errorf("Unexpected clinic section %+v", vc.Clinic)
	}
}

// TestContextBuildPublicMetadata tests the public-submitter substitute
// for the patient section
func TestContextBuildPublicMetadata(t *testing.T) {
	patients, appointments, clinics, forms, event := builderFixtures()
	b := NewContextBuilder(patients, appointments, clinics, forms, "https://forms.clinicore.app", zap.NewNop())

	event.PatientID = nil
	event.AppointmentID = nil
	event.PublicMetadata = &PublicMetadata{
		Name:  "João Pereira",
		Email: "joao@example.com",
	}

	vc := b.Build(context.Background(), event)

	if vc.Patient == nil || vc.Patient.FullName != "João Pereira" || vc.Patient.FirstName != "João" {
		t.Errorf("Expected patient section from public metadata, got %+v", vc.Patient)
	}
	if vc.Appointment != nil {
		t.Errorf("Expected no appointment section, got %+v", vc.Appointment)
	}
}

// TestContextBuildSectionDegradation tests that a failing lookup omits
// the whole section and leaves the rest intact
func TestContextBuildSectionDegradation(t *testing.T) {
	patients, appointments, clinics, forms, event := builderFixtures()
	appointments.err = errors.New("connection refused")
	b := NewContextBuilder(patients, appointments, clinics, forms, "https://forms.clinicore.app", zap.NewNop())

	vc := b.Build(context.Background(), event)

	if vc.Appointment != nil {
		t.Errorf("Expected appointment section absent, got %+v", vc.Appointment)
	}
	if vc.Form != nil {
		t.Errorf("Expected form section absent without appointment, got %+v", vc.Form)
	}
	if vc.Patient == nil || vc.Clinic == nil {
		t.Error("Expected remaining sections intact")
	}
}

// TestContextBuildNoPendingForm tests that the form section stays
// absent when every linked form is completed
func TestContextBuildNoPendingForm(t *testing.T) {
	patients, appointments, clinics, forms, event := builderFixtures()
	forms.instance = nil
	b := NewContextBuilder(patients, appointments, clinics, forms, "https://forms.clinicore.app", zap.NewNop())

	vc := b.Build(context.Background(), event)

	if vc.Form != nil {
		t.Errorf("Expected no form section, got %+v", vc.Form)
	}
}
