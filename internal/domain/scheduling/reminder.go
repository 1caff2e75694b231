package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/legalaid/legalaid/internal/platform/schedtz"
)

// Dispatcher periodically sweeps for confirmed appointments starting within
// the reminder horizon and emails both parties. An appointment is marked
// reminded once at least one of the two emails goes out, so a total notifier
// outage leaves it eligible for the next sweep.
type Dispatcher struct {
	appts     AppointmentRepository
	directory DirectoryRepository
	mailer    TemplateMailer
	zone      schedtz.Zone
	interval  time.Duration
	horizon   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewDispatcher(appts AppointmentRepository, directory DirectoryRepository, mailer TemplateMailer, zone schedtz.Zone, interval, horizon time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		appts:     appts,
		directory: directory,
		mailer:    mailer,
		zone:      zone,
		interval:  interval,
		horizon:   horizon,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. A sweep in
// progress finishes its batch; cancellation is observed between ticks.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().
		Dur("interval", d.interval).
		Dur("horizon", d.horizon).
		Msg("reminder dispatcher started")

	// The sweep gets a context detached from cancellation: a shutdown
	// arriving mid-batch would otherwise abort between sending an email and
	// marking it sent, leaving the row to re-send on the next start.
	sweepCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("reminder dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.Tick(sweepCtx, d.now()); err != nil {
				d.logger.Error().Err(err).Msg("reminder sweep failed")
			}
		}
	}
}

// Tick runs a single sweep at the given instant. Exported so tests can drive
// the dispatcher without a ticker.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) (err error) {
	due, err := d.appts.DueReminders(ctx, now, now.Add(d.horizon))
	if err != nil {
		return err
	}

	for _, appt := range due {
		d.remind(ctx, appt)
	}
	return nil
}

func (d *Dispatcher) remind(ctx context.Context, appt *Appointment) {
	client, cerr := d.directory.ClientContact(ctx, appt.ClientID)
	lawyer, lerr := d.directory.LawyerContact(ctx, appt.LawyerID)
	if cerr != nil || lerr != nil {
		d.logger.Warn().
			AnErr("client_err", cerr).
			AnErr("lawyer_err", lerr).
			Int64("appointment_id", appt.ID).
			Msg("reminder skipped: contact lookup failed")
		return
	}

	local := d.zone.In(appt.ScheduledAt)
	data := map[string]string{
		"client_name": client.Name,
		"lawyer_name": lawyer.Name,
		"date":        local.Format("2006-01-02"),
		"time":        local.Format("15:04"),
	}

	delivered := 0
	if err := d.mailer.SendTemplate(ctx, "appointment-reminder-client", data, client.Email); err != nil {
		d.logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("client reminder failed")
	} else {
		delivered++
	}
	if err := d.mailer.SendTemplate(ctx, "appointment-reminder-lawyer", data, lawyer.Email); err != nil {
		d.logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("lawyer reminder failed")
	} else {
		delivered++
	}

	if delivered == 0 {
		return
	}

	marked, err := d.appts.MarkReminderSent(ctx, appt.ID)
	if err != nil {
		d.logger.Error().Err(err).Int64("appointment_id", appt.ID).Msg("failed to mark reminder sent")
		return
	}
	if marked {
		d.logger.Info().
			Int64("appointment_id", appt.ID).
			Int("emails_delivered", delivered).
			Msg("reminder sent")
	}
}
