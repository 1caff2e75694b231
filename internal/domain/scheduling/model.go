package scheduling

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// validTransitions encodes the status machine. Pending appointments can be
// confirmed or cancelled; confirmed ones can only be cancelled. Cancelled is
// terminal, and self-transitions are rejected.
var validTransitions = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusCancelled: true},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	return validTransitions[from][to]
}

// ParseStatus validates a client-supplied status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return Status(s), nil
	}
	return "", ErrInvalidStatus
}

// MinSlotSpacing is the minimum distance between two appointments of the
// same lawyer, in either direction.
const MinSlotSpacing = 30 * time.Minute

// Appointment maps to the appointments table. LawyerName and ClientName are
// joined in by list queries and empty elsewhere.
type Appointment struct {
	ID           int64     `json:"id"`
	ClientID     int64     `json:"client_id"`
	LawyerID     int64     `json:"lawyer_id"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Purpose      string    `json:"purpose,omitempty"`
	Status       Status    `json:"status"`
	ReminderSent bool      `json:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at"`

	LawyerName string `json:"lawyer_name,omitempty"`
	ClientName string `json:"client_name,omitempty"`
}

// Contact is the name and address a notification goes to.
type Contact struct {
	Name  string
	Email string
}

var (
	// ErrSlotConflict means the requested time is within MinSlotSpacing of
	// another non-cancelled appointment of the same lawyer.
	ErrSlotConflict = errors.New("requested slot conflicts with an existing appointment")

	// ErrInvalidTransition means the requested status change is not allowed
	// from the appointment's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStatus means the supplied status string is not a known status.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrNotFoundOrUnauthorized collapses "no such appointment" and "not
	// yours" so callers cannot probe for other lawyers' appointment IDs.
	ErrNotFoundOrUnauthorized = errors.New("appointment not found")

	// ErrLawyerNotFound means the booking referenced an unknown lawyer.
	ErrLawyerNotFound = errors.New("lawyer not found")
)
