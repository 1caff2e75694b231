package cases

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/legalaid/legalaid/internal/platform/auth"
	"github.com/legalaid/legalaid/internal/platform/websocket"
)

type Service struct {
	cases    CaseRepository
	messages MessageRepository
	events   websocket.EventPublisher
	logger   zerolog.Logger

	// roomMu serializes persist-then-broadcast per case, so every subscriber
	// observes messages in the same order they were committed. Entries are
	// reference counted and evicted when the last sender releases them.
	mu     sync.Mutex
	roomMu map[int64]*caseLock
}

type caseLock struct {
	sync.Mutex
	refs int
}

func NewService(cases CaseRepository, messages MessageRepository, events websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		cases:    cases,
		messages: messages,
		events:   events,
		logger:   logger,
		roomMu:   make(map[int64]*caseLock),
	}
}

// lockCase takes the case's ordering lock and returns its release func. The
// map entry lives only while at least one sender holds or waits on it.
func (s *Service) lockCase(caseID int64) func() {
	s.mu.Lock()
	l, ok := s.roomMu[caseID]
	if !ok {
		l = &caseLock{}
		s.roomMu[caseID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.roomMu, caseID)
		}
		s.mu.Unlock()
	}
}

// Authorize returns the case if the principal is one of its two participants.
// A missing case and a case belonging to someone else both surface as
// ErrForbidden, so outsiders cannot probe which case IDs exist.
func (s *Service) Authorize(ctx context.Context, p auth.Principal, caseID int64) (*Case, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if errors.Is(err, ErrCaseNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	if p.IsLawyer() && c.LawyerID == p.ID {
		return c, nil
	}
	if p.IsClient() && c.ClientID == p.ID {
		return c, nil
	}
	return nil, ErrForbidden
}

// Send persists a message and broadcasts it to the case room. The room lock
// spans both steps: two racing sends commit in some order, and the broadcasts
// go out in that same order.
func (s *Service) Send(ctx context.Context, p auth.Principal, caseID int64, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	if len(body) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	if _, err := s.Authorize(ctx, p, caseID); err != nil {
		return nil, err
	}

	msg := &Message{
		CaseID:     caseID,
		SenderID:   p.ID,
		SenderRole: string(p.Role),
		Body:       body,
	}

	unlock := s.lockCase(caseID)
	defer unlock()

	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := s.events.Publish(ctx, websocket.Event{
		Type:      "new_message",
		Room:      RoomName(caseID),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}); err != nil {
		// The message is committed; subscribers catch up via history.
		s.logger.Warn().Err(err).Int64("case_id", caseID).Msg("broadcast failed")
	}

	return msg, nil
}

// History returns the case's messages in insertion order.
func (s *Service) History(ctx context.Context, p auth.Principal, caseID int64, limit, offset int) ([]*Message, int, error) {
	if _, err := s.Authorize(ctx, p, caseID); err != nil {
		return nil, 0, err
	}
	return s.messages.ListByCase(ctx, caseID, limit, offset)
}

// ListCases returns the principal's cases, newest first.
func (s *Service) ListCases(ctx context.Context, p auth.Principal, limit, offset int) ([]*Case, int, error) {
	return s.cases.ListForUser(ctx, string(p.Role), p.ID, limit, offset)
}
