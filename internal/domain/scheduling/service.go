package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/legalaid/legalaid/internal/platform/schedtz"
)

// TxRunner executes fn inside a database transaction. Repositories called
// from fn pick the transaction up from the context.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx runs fn without a transaction. For tests on mock repos.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// TemplateMailer is the slice of the notification layer the scheduler needs.
type TemplateMailer interface {
	SendTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) error
}

type Service struct {
	appts     AppointmentRepository
	directory DirectoryRepository
	mailer    TemplateMailer
	zone      schedtz.Zone
	runTx     TxRunner
	logger    zerolog.Logger
}

func NewService(appts AppointmentRepository, directory DirectoryRepository, mailer TemplateMailer, zone schedtz.Zone, runTx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		appts:     appts,
		directory: directory,
		mailer:    mailer,
		zone:      zone,
		runTx:     runTx,
		logger:    logger,
	}
}

// Book creates a pending appointment for the client with the given lawyer.
// The lawyer's existing non-cancelled appointments are row-locked for the
// duration of the spacing check, so two rival bookings for nearby times
// serialize and the loser sees the winner's row.
func (s *Service) Book(ctx context.Context, clientID, lawyerID int64, at time.Time, purpose string) (*Appointment, error) {
	at = s.zone.In(at)

	exists, err := s.directory.LawyerExists(ctx, lawyerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrLawyerNotFound
	}

	appt := &Appointment{
		ClientID:    clientID,
		LawyerID:    lawyerID,
		ScheduledAt: at,
		Purpose:     purpose,
		Status:      StatusPending,
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		existing, err := s.appts.LockByLawyer(ctx, lawyerID)
		if err != nil {
			return err
		}
		for _, other := range existing {
			delta := at.Sub(s.zone.In(other.ScheduledAt))
			if delta < 0 {
				delta = -delta
			}
			if delta < MinSlotSpacing {
				return ErrSlotConflict
			}
		}
		return s.appts.Create(ctx, appt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Int64("lawyer_id", lawyerID).
		Int64("client_id", clientID).
		Time("scheduled_at", at).
		Msg("appointment booked")
	return appt, nil
}

// UpdateStatus moves an appointment the lawyer owns through the status
// machine. Cancelling clears the reminder flag so a later re-booking flow
// starts clean; confirming sends the client a best-effort email.
func (s *Service) UpdateStatus(ctx context.Context, lawyerID, id int64, to Status) (*Appointment, error) {
	appt, err := s.appts.GetOwnedByLawyer(ctx, id, lawyerID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(appt.Status, to) {
		return nil, ErrInvalidTransition
	}

	reminderSent := appt.ReminderSent
	if to == StatusCancelled {
		reminderSent = false
	}

	// Guarded write: if a concurrent update moved the appointment since the
	// read above, the transition check was made against a stale status and
	// must not be trusted.
	won, err := s.appts.UpdateStatus(ctx, id, appt.Status, to, reminderSent)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrInvalidTransition
	}
	appt.Status = to
	appt.ReminderSent = reminderSent

	if to == StatusConfirmed {
		s.sendConfirmation(ctx, appt)
	}

	s.logger.Info().
		Int64("appointment_id", id).
		Int64("lawyer_id", lawyerID).
		Str("status", string(to)).
		Msg("appointment status updated")
	return appt, nil
}

// sendConfirmation emails the client. Delivery failure is logged, not
// surfaced; the status change has already been committed.
func (s *Service) sendConfirmation(ctx context.Context, appt *Appointment) {
	client, err := s.directory.ClientContact(ctx, appt.ClientID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("confirmation skipped: client lookup failed")
		return
	}
	lawyer, err := s.directory.LawyerContact(ctx, appt.LawyerID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("confirmation skipped: lawyer lookup failed")
		return
	}

	local := s.zone.In(appt.ScheduledAt)
	err = s.mailer.SendTemplate(ctx, "appointment-confirmed", map[string]string{
		"client_name": client.Name,
		"lawyer_name": lawyer.Name,
		"date":        local.Format("2006-01-02"),
		"time":        local.Format("15:04"),
	}, client.Email)
	if err != nil {
		s.logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("confirmation email failed")
	}
}

// ListForClient returns the client's appointments, newest first.
func (s *Service) ListForClient(ctx context.Context, clientID int64, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.ListByClient(ctx, clientID, limit, offset)
}

// ListForLawyer returns the lawyer's appointments, newest first.
func (s *Service) ListForLawyer(ctx context.Context, lawyerID int64, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.ListByLawyer(ctx, lawyerID, limit, offset)
}
