package scheduling

import (
	"context"
	"time"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetOwnedByLawyer(ctx context.Context, id, lawyerID int64) (*Appointment, error)

	// UpdateStatus moves the appointment from one status to another, but only
	// if it is still in the expected status. Returns whether the row changed;
	// a false result means a concurrent update won and the caller's read is
	// stale.
	UpdateStatus(ctx context.Context, id int64, from, to Status, reminderSent bool) (bool, error)

	// LockByLawyer returns the lawyer's non-cancelled appointments with their
	// rows locked until the surrounding transaction ends. It must be called
	// inside a transaction; the lock is what makes the spacing check safe
	// under concurrent bookings.
	LockByLawyer(ctx context.Context, lawyerID int64) ([]*Appointment, error)

	ListByClient(ctx context.Context, clientID int64, limit, offset int) ([]*Appointment, int, error)
	ListByLawyer(ctx context.Context, lawyerID int64, limit, offset int) ([]*Appointment, int, error)

	// DueReminders returns confirmed, not-yet-reminded appointments scheduled
	// in the half-open window [from, to).
	DueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error)

	// MarkReminderSent flips reminder_sent for the appointment, but only if
	// it is still confirmed and unreminded. Returns whether the row changed.
	MarkReminderSent(ctx context.Context, id int64) (bool, error)
}

// DirectoryRepository resolves the user accounts referenced by appointments
// and cases. Account management itself lives in another service.
type DirectoryRepository interface {
	LawyerExists(ctx context.Context, id int64) (bool, error)
	LawyerContact(ctx context.Context, id int64) (Contact, error)
	ClientContact(ctx context.Context, id int64) (Contact, error)
}
