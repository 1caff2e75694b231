package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/legalaid/legalaid/internal/platform/notification"
	"github.com/legalaid/legalaid/internal/platform/schedtz"
)

// -- Mock Repositories --

type mockApptRepo struct {
	mu     sync.Mutex
	appts  map[int64]*Appointment
	nextID int64

	lockErr error

	// afterGet, when set, runs after GetOwnedByLawyer returns its copy, so a
	// test can interleave a rival write between a caller's read and its
	// subsequent update.
	afterGet func()
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{appts: make(map[int64]*Appointment), nextID: 1}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID
	m.nextID++
	a.CreatedAt = time.Now()
	stored := *a
	m.appts[a.ID] = &stored
	return nil
}

func (m *mockApptRepo) GetOwnedByLawyer(_ context.Context, id, lawyerID int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.LawyerID != lawyerID {
		return nil, ErrNotFoundOrUnauthorized
	}
	copy := *a
	if m.afterGet != nil {
		m.mu.Unlock()
		m.afterGet()
		m.mu.Lock()
	}
	return &copy, nil
}

func (m *mockApptRepo) UpdateStatus(_ context.Context, id int64, from, to Status, reminderSent bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.ReminderSent = reminderSent
	return true, nil
}

func (m *mockApptRepo) LockByLawyer(_ context.Context, lawyerID int64) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	var result []*Appointment
	for _, a := range m.appts {
		if a.LawyerID == lawyerID && a.Status != StatusCancelled {
			copy := *a
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *mockApptRepo) ListByClient(_ context.Context, clientID int64, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Appointment
	for _, a := range m.appts {
		if a.ClientID == clientID {
			copy := *a
			result = append(result, &copy)
		}
	}
	return result, len(result), nil
}

func (m *mockApptRepo) ListByLawyer(_ context.Context, lawyerID int64, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Appointment
	for _, a := range m.appts {
		if a.LawyerID == lawyerID {
			copy := *a
			result = append(result, &copy)
		}
	}
	return result, len(result), nil
}

func (m *mockApptRepo) DueReminders(_ context.Context, from, to time.Time) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Appointment
	for _, a := range m.appts {
		if a.Status == StatusConfirmed && !a.ReminderSent &&
			!a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			copy := *a
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *mockApptRepo) MarkReminderSent(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != StatusConfirmed || a.ReminderSent {
		return false, nil
	}
	a.ReminderSent = true
	return true, nil
}

func (m *mockApptRepo) get(id int64) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.appts[id]
	if a == nil {
		return nil
	}
	copy := *a
	return &copy
}

type mockDirectory struct {
	lawyers map[int64]Contact
	clients map[int64]Contact
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		lawyers: map[int64]Contact{1: {Name: "Adv. Rijal", Email: "rijal@example.com"}},
		clients: map[int64]Contact{10: {Name: "Sita Sharma", Email: "sita@example.com"}},
	}
}

func (m *mockDirectory) LawyerExists(_ context.Context, id int64) (bool, error) {
	_, ok := m.lawyers[id]
	return ok, nil
}

func (m *mockDirectory) LawyerContact(_ context.Context, id int64) (Contact, error) {
	c, ok := m.lawyers[id]
	if !ok {
		return Contact{}, ErrLawyerNotFound
	}
	return c, nil
}

func (m *mockDirectory) ClientContact(_ context.Context, id int64) (Contact, error) {
	c, ok := m.clients[id]
	if !ok {
		return Contact{}, fmt.Errorf("client %d not found", id)
	}
	return c, nil
}

// serialTx emulates the database's transaction serialization for mocks: only
// one booking transaction runs at a time, so the spacing check and insert
// are atomic the way the row locks make them in production.
func serialTx() TxRunner {
	var mu sync.Mutex
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		mu.Lock()
		defer mu.Unlock()
		return fn(ctx)
	}
}

var testZone = schedtz.MustLoad(schedtz.DefaultZone)

func newTestService(appts *mockApptRepo, dir *mockDirectory, sender *notification.MockEmailSender) *Service {
	mailer := notification.NewMailer(sender, notification.NewTemplateEngine())
	return NewService(appts, dir, mailer, testZone, serialTx(), zerolog.Nop())
}

// -- Booking --

func TestBook_Success(t *testing.T) {
	repo := newMockApptRepo()
	svc := newTestService(repo, newMockDirectory(), &notification.MockEmailSender{})

	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	appt, err := svc.Book(context.Background(), 10, 1, at, "contract review")
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	if appt.ID == 0 {
		t.Error("expected assigned appointment ID")
	}
	if appt.Status != StatusPending {
		t.Errorf("expected pending status, got %s", appt.Status)
	}
	if appt.ReminderSent {
		t.Error("expected reminder_sent false on new appointment")
	}
	if !appt.ScheduledAt.Equal(at) {
		t.Errorf("expected instant preserved, got %v", appt.ScheduledAt)
	}
}

func TestBook_UnknownLawyer(t *testing.T) {
	svc := newTestService(newMockApptRepo(), newMockDirectory(), &notification.MockEmailSender{})

	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	_, err := svc.Book(context.Background(), 10, 99, at, "")
	if !errors.Is(err, ErrLawyerNotFound) {
		t.Fatalf("expected ErrLawyerNotFound, got %v", err)
	}
}

// Booking imposes no freshness precondition: a time in the past is the
// caller's business (backfilling a walk-in consultation, for example).
func TestBook_PastTimeAccepted(t *testing.T) {
	repo := newMockApptRepo()
	svc := newTestService(repo, newMockDirectory(), &notification.MockEmailSender{})

	at := time.Date(2020, 1, 6, 8, 0, 0, 0, time.UTC)
	appt, err := svc.Book(context.Background(), 10, 1, at, "record of past consultation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusPending {
		t.Errorf("status = %q, want %q", appt.Status, StatusPending)
	}
}

func TestBook_SpacingConflicts(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		offset  time.Duration
		wantErr error
	}{
		{"same minute", 0, ErrSlotConflict},
		{"20 minutes after", 20 * time.Minute, ErrSlotConflict},
		{"20 minutes before", -20 * time.Minute, ErrSlotConflict},
		{"29m59s after", 30*time.Minute - time.Second, ErrSlotConflict},
		{"exactly 30 minutes", 30 * time.Minute, nil},
		{"35 minutes after", 35 * time.Minute, nil},
		{"35 minutes before", -35 * time.Minute, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockApptRepo()
			svc := newTestService(repo, newMockDirectory(), &notification.MockEmailSender{})

			if _, err := svc.Book(context.Background(), 10, 1, base, ""); err != nil {
				t.Fatalf("seed booking failed: %v", err)
			}

			_, err := svc.Book(context.Background(), 10, 1, base.Add(tc.offset), "")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("offset %v: expected %v, got %v", tc.offset, tc.wantErr, err)
			}
		})
	}
}

func TestBook_CancelledAppointmentDoesNotBlock(t *testing.T) {
	repo := newMockApptRepo()
	svc := newTestService(repo, newMockDirectory(), &notification.MockEmailSender{})

	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	first, err := svc.Book(context.Background(), 10, 1, at, "")
	if err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), 1, first.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := svc.Book(context.Background(), 10, 1, at.Add(10*time.Minute), ""); err != nil {
		t.Fatalf("expected booking near cancelled slot to succeed, got %v", err)
	}
}

func TestBook_OtherLawyerUnaffected(t *testing.T) {
	repo := newMockApptRepo()
	dir := newMockDirectory()
	dir.lawyers[2] = Contact{Name: "Adv. Thapa", Email: "thapa@example.com"}
	svc := newTestService(repo, dir, &notification.MockEmailSender{})

	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	if _, err := svc.Book(context.Background(), 10, 1, at, ""); err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}
	if _, err := svc.Book(context.Background(), 10, 2, at, ""); err != nil {
		t.Fatalf("expected same slot with another lawyer to succeed, got %v", err)
	}
}

func TestBook_ConcurrentRaceAdmitsOne(t *testing.T) {
	repo := newMockApptRepo()
	svc := newTestService(repo, newMockDirectory(), &notification.MockEmailSender{})

	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	const n = 16
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// All within the spacing window of each other.
			_, err := svc.Book(context.Background(), 10, 1, at.Add(time.Duration(i)*time.Minute), "")
			results[i] = err
		}(i)
	}
	wg.Wait()

	won, lost := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotConflict):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly 1 winning booking, got %d (conflicts: %d)", won, lost)
	}
}

// -- Status updates --

func bookConfirmable(t *testing.T, svc *Service, repo *mockApptRepo) *Appointment {
	t.Helper()
	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	appt, err := svc.Book(context.Background(), 10, 1, at, "")
	if err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}
	return appt
}

func TestUpdateStatus_TransitionTable(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		wantErr error
	}{
		{StatusPending, StatusConfirmed, nil},
		{StatusPending, StatusCancelled, nil},
		{StatusConfirmed, StatusCancelled, nil},
		{StatusPending, StatusPending, ErrInvalidTransition},
		{StatusConfirmed, StatusPending, ErrInvalidTransition},
		{StatusConfirmed, StatusConfirmed, ErrInvalidTransition},
		{StatusCancelled, StatusPending, ErrInvalidTransition},
		{StatusCancelled, StatusConfirmed, ErrInvalidTransition},
		{StatusCancelled, StatusCancelled, ErrInvalidTransition},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			repo := newMockApptRepo()
			svc := newTestService(repo, newMockDirectory(), &notification.MockEmailSender{})

			appt := bookConfirmable(t, svc, repo)
			if _, err := repo.UpdateStatus(context.Background(), appt.ID, StatusPending, tc.from, false); err != nil {
				t.Fatalf("seeding status: %v", err)
			}

			_, err := svc.UpdateStatus(context.Background(), 1, appt.ID, tc.to)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.wantErr, err)
			}
		})
	}
}

// A confirm that read the appointment before a rival cancel committed must
// not write confirmed over the cancel: cancelled is terminal. The guarded
// update detects the stale read and the confirm fails.
func TestUpdateStatus_StaleReadCannotReviveCancelled(t *testing.T) {
	repo := newMockApptRepo()
	svc := newTestService(repo, newMockDirectory(), &notification.MockEmailSender{})

	appt := bookConfirmable(t, svc, repo)

	// Interleave a cancel between the confirm's read and its write.
	repo.afterGet = func() {
		repo.afterGet = nil
		if _, err := svc.UpdateStatus(context.Background(), 1, appt.ID, StatusCancelled); err != nil {
			t.Errorf("interleaved cancel: %v", err)
		}
	}

	_, err := svc.UpdateStatus(context.Background(), 1, appt.ID, StatusConfirmed)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for confirm over cancel, got %v", err)
	}

	stored, getErr := repo.GetOwnedByLawyer(context.Background(), appt.ID, 1)
	if getErr != nil {
		t.Fatalf("GetOwnedByLawyer: %v", getErr)
	}
	if stored.Status != StatusCancelled {
		t.Fatalf("status = %q, want %q to remain terminal", stored.Status, StatusCancelled)
	}
	if stored.ReminderSent {
		t.Error("reminder flag must stay cleared by the cancel")
	}
}

func TestUpdateStatus_WrongLawyerIndistinguishableFromMissing(t *testing.T) {
	repo := newMockApptRepo()
	dir := newMockDirectory()
	dir.lawyers[2] = Contact{Name: "Adv. Thapa", Email: "thapa@example.com"}
	svc := newTestService(repo, dir, &notification.MockEmailSender{})

	appt := bookConfirmable(t, svc, repo)

	_, errWrong := svc.UpdateStatus(context.Background(), 2, appt.ID, StatusConfirmed)
	_, errMissing := svc.UpdateStatus(context.Background(), 1, 9999, StatusConfirmed)

	if !errors.Is(errWrong, ErrNotFoundOrUnauthorized) {
		t.Fatalf("expected ErrNotFoundOrUnauthorized for wrong lawyer, got %v", errWrong)
	}
	if !errors.Is(errMissing, ErrNotFoundOrUnauthorized) {
		t.Fatalf("expected ErrNotFoundOrUnauthorized for missing id, got %v", errMissing)
	}
	if errWrong.Error() != errMissing.Error() {
		t.Error("wrong-owner and missing-id errors must be indistinguishable")
	}
}

func TestUpdateStatus_ConfirmSendsEmail(t *testing.T) {
	repo := newMockApptRepo()
	sender := &notification.MockEmailSender{}
	svc := newTestService(repo, newMockDirectory(), sender)

	appt := bookConfirmable(t, svc, repo)
	if _, err := svc.UpdateStatus(context.Background(), 1, appt.ID, StatusConfirmed); err != nil {
		t.Fatalf("UpdateStatus() error: %v", err)
	}

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 confirmation email, got %d", len(calls))
	}
	if calls[0].To != "sita@example.com" {
		t.Errorf("expected email to client, got %s", calls[0].To)
	}
}

func TestUpdateStatus_ConfirmSucceedsDespiteEmailFailure(t *testing.T) {
	repo := newMockApptRepo()
	sender := &notification.MockEmailSender{ShouldFail: true, FailError: "relay down"}
	svc := newTestService(repo, newMockDirectory(), sender)

	appt := bookConfirmable(t, svc, repo)
	updated, err := svc.UpdateStatus(context.Background(), 1, appt.ID, StatusConfirmed)
	if err != nil {
		t.Fatalf("expected confirm to succeed despite notifier failure, got %v", err)
	}
	if updated.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", updated.Status)
	}
}

func TestUpdateStatus_CancelResetsReminderFlag(t *testing.T) {
	repo := newMockApptRepo()
	svc := newTestService(repo, newMockDirectory(), &notification.MockEmailSender{})

	appt := bookConfirmable(t, svc, repo)
	if _, err := svc.UpdateStatus(context.Background(), 1, appt.ID, StatusConfirmed); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := repo.MarkReminderSent(context.Background(), appt.ID); err != nil {
		t.Fatalf("marking reminder: %v", err)
	}

	updated, err := svc.UpdateStatus(context.Background(), 1, appt.ID, StatusCancelled)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if updated.ReminderSent {
		t.Error("expected reminder_sent reset to false on cancel")
	}
	if stored := repo.get(appt.ID); stored.ReminderSent {
		t.Error("expected stored reminder_sent false after cancel")
	}
}

func TestUpdateStatus_CancelSendsNoEmail(t *testing.T) {
	repo := newMockApptRepo()
	sender := &notification.MockEmailSender{}
	svc := newTestService(repo, newMockDirectory(), sender)

	appt := bookConfirmable(t, svc, repo)
	if _, err := svc.UpdateStatus(context.Background(), 1, appt.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if len(sender.Calls()) != 0 {
		t.Errorf("expected no emails on cancel, got %d", len(sender.Calls()))
	}
}

// -- Lists --

func TestListForClientAndLawyer(t *testing.T) {
	repo := newMockApptRepo()
	dir := newMockDirectory()
	dir.clients[11] = Contact{Name: "Hari", Email: "hari@example.com"}
	svc := newTestService(repo, dir, &notification.MockEmailSender{})

	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	if _, err := svc.Book(context.Background(), 10, 1, at, ""); err != nil {
		t.Fatalf("booking: %v", err)
	}
	if _, err := svc.Book(context.Background(), 11, 1, at.Add(time.Hour), ""); err != nil {
		t.Fatalf("booking: %v", err)
	}

	mine, total, err := svc.ListForClient(context.Background(), 10, 20, 0)
	if err != nil {
		t.Fatalf("ListForClient() error: %v", err)
	}
	if total != 1 || len(mine) != 1 {
		t.Fatalf("expected 1 appointment for client 10, got %d", total)
	}

	all, total, err := svc.ListForLawyer(context.Background(), 1, 20, 0)
	if err != nil {
		t.Fatalf("ListForLawyer() error: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("expected 2 appointments for lawyer 1, got %d", total)
	}
}
