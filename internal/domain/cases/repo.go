package cases

import "context"

type CaseRepository interface {
	GetByID(ctx context.Context, id int64) (*Case, error)
	ListForUser(ctx context.Context, role string, userID int64, limit, offset int) ([]*Case, int, error)
}

type MessageRepository interface {
	Insert(ctx context.Context, m *Message) error

	// ListByCase returns messages in insertion order: ascending created_at
	// with the sequential id as tiebreaker, so replayed history matches the
	// order live subscribers observed.
	ListByCase(ctx context.Context, caseID int64, limit, offset int) ([]*Message, int, error)
}
