package notification

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/appointment"
	"github.com/clinicore/platform/internal/shared/config"
	"github.com/clinicore/platform/internal/shared/events"
	"github.com/clinicore/platform/internal/shared/metrics"
	"github.com/clinicore/platform/internal/shared/types"
)

const reminderBatchSize = 100

// ReminderAppointmentSource finds appointments due for a reminder and
// stamps them once the reminder event is out.
type ReminderAppointmentSource interface {
	FindDueForReminder(ctx context.Context, horizon time.Time, limit int) ([]appointment.Appointment, error)
	MarkReminderSent(ctx context.Context, id types.ID) error
}

// ReminderScheduler periodically scans for appointments inside the
// reminder lead window and publishes an appointment.reminder event for
// each. The stamp on the appointment guarantees at most one reminder
// event per appointment; what happens to the event downstream follows
// the normal dispatch rules.
type ReminderScheduler struct {
	appointments ReminderAppointmentSource
	publisher    events.Publisher
	lead         time.Duration
	spec         string
	cron         *cron.Cron
	log          *zap.Logger
}

// NewReminderScheduler creates a reminder scheduler
func NewReminderScheduler(
	appointments ReminderAppointmentSource,
	publisher events.Publisher,
	cfg config.ReminderConfig,
	log *zap.Logger,
) *ReminderScheduler {
	return &ReminderScheduler{
		appointments: appointments,
		publisher:    publisher,
		lead:         time.Duration(cfg.LeadHours) * time.Hour,
		spec:         cfg.CronSpec,
		log:          log,
	}
}

// Start registers the scan on the cron spec and starts the scheduler
func (s *ReminderScheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.Scan(ctx); err != nil {
			s.log.Error("reminder scan failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("reminder scheduler started",
		zap.String("spec", s.spec),
		zap.Duration("lead", s.lead))
	return nil
}

// Stop halts the scheduler and waits for a running scan to finish
func (s *ReminderScheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Scan publishes reminder events for appointments entering the lead
// window. Each appointment is stamped before the next one is handled so
// a crash mid-batch does not replay the whole batch.
func (s *ReminderScheduler) Scan(ctx context.Context) error {
	horizon := time.Now().UTC().Add(s.lead)

	due, err := s.appointments.FindDueForReminder(ctx, horizon, reminderBatchSize)
	if err != nil {
		return err
	}

	for i := range due {
		appt := &due[i]
		if err := s.publishReminder(ctx, appt); err != nil {
			s.log.Warn("failed to publish reminder, will retry next scan",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err))
			continue
		}

		if err := s.appointments.MarkReminderSent(ctx, appt.ID); err != nil {
			s.log.Warn("failed to stamp reminder",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err))
			continue
		}

		metrics.RecordReminderPublished()
	}

	return nil
}

func (s *ReminderScheduler) publishReminder(ctx context.Context, appt *appointment.Appointment) error {
	appointmentID := appt.ID
	patientID := appt.PatientID

	event, err := events.NewEvent("appointment.reminder", "reminder-scheduler", appt.ClinicID, busPayload{
		PatientID:     &patientID,
		AppointmentID: &appointmentID,
	})
	if err != nil {
		return err
	}

	return s.publisher.Publish(ctx, event)
}
