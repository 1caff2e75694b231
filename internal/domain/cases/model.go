package cases

import (
	"errors"
	"fmt"
	"time"
)

// Case maps to the cases table. A case ties one client to one lawyer; its
// messages are visible to exactly those two accounts.
type Case struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"client_id"`
	LawyerID  int64     `json:"lawyer_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Message maps to the case_messages table.
type Message struct {
	ID         int64     `json:"id"`
	CaseID     int64     `json:"case_id"`
	SenderID   int64     `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// RoomName is the hub room key for a case.
func RoomName(caseID int64) string {
	return fmt.Sprintf("case_%d", caseID)
}

// MaxMessageLength bounds a single chat message.
const MaxMessageLength = 4000

var (
	// ErrForbidden means the user is not a participant of the case.
	ErrForbidden = errors.New("not a participant of this case")

	// ErrCaseNotFound means no such case exists.
	ErrCaseNotFound = errors.New("case not found")

	// ErrEmptyMessage means the message body was empty or whitespace.
	ErrEmptyMessage = errors.New("message body is empty")

	// ErrMessageTooLong means the message body exceeds MaxMessageLength.
	ErrMessageTooLong = errors.New("message body too long")
)
