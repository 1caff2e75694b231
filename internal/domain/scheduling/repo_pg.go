package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/legalaid/legalaid/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, client_id, lawyer_id, scheduled_at, purpose, status, reminder_sent, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ClientID, &a.LawyerID, &a.ScheduledAt, &a.Purpose,
		&a.Status, &a.ReminderSent, &a.CreatedAt)
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (client_id, lawyer_id, scheduled_at, purpose, status, reminder_sent)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING id, created_at`,
		a.ClientID, a.LawyerID, a.ScheduledAt, a.Purpose, a.Status).
		Scan(&a.ID, &a.CreatedAt)
}

func (r *appointmentRepoPG) GetOwnedByLawyer(ctx context.Context, id, lawyerID int64) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+apptCols+` FROM appointments WHERE id = $1 AND lawyer_id = $2`, id, lawyerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFoundOrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id int64, from, to Status, reminderSent bool) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $3, reminder_sent = $4
		WHERE id = $1 AND status = $2`,
		id, from, to, reminderSent)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepoPG) LockByLawyer(ctx context.Context, lawyerID int64) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE lawyer_id = $1 AND status <> 'cancelled'
		ORDER BY scheduled_at
		FOR UPDATE`, lawyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) ListByClient(ctx context.Context, clientID int64, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE client_id = $1`, clientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.id, a.client_id, a.lawyer_id, a.scheduled_at, a.purpose, a.status,
			a.reminder_sent, a.created_at, l.full_name
		FROM appointments a
		JOIN lawyers l ON l.id = a.lawyer_id
		WHERE a.client_id = $1
		ORDER BY a.scheduled_at DESC
		LIMIT $2 OFFSET $3`, clientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.ClientID, &a.LawyerID, &a.ScheduledAt, &a.Purpose,
			&a.Status, &a.ReminderSent, &a.CreatedAt, &a.LawyerName); err != nil {
			return nil, 0, err
		}
		items = append(items, &a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) ListByLawyer(ctx context.Context, lawyerID int64, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE lawyer_id = $1`, lawyerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.id, a.client_id, a.lawyer_id, a.scheduled_at, a.purpose, a.status,
			a.reminder_sent, a.created_at, c.full_name
		FROM appointments a
		JOIN clients c ON c.id = a.client_id
		WHERE a.lawyer_id = $1
		ORDER BY a.scheduled_at DESC
		LIMIT $2 OFFSET $3`, lawyerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.ClientID, &a.LawyerID, &a.ScheduledAt, &a.Purpose,
			&a.Status, &a.ReminderSent, &a.CreatedAt, &a.ClientName); err != nil {
			return nil, 0, err
		}
		items = append(items, &a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) DueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE status = 'confirmed' AND reminder_sent = false
			AND scheduled_at >= $1 AND scheduled_at < $2
		ORDER BY scheduled_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) MarkReminderSent(ctx context.Context, id int64) (bool, error) {
	// Guarded so a concurrent cancel between the sweep read and this write
	// does not resurrect the reminder flag.
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET reminder_sent = true
		WHERE id = $1 AND status = 'confirmed' AND reminder_sent = false`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// =========== Directory Repository ===========

type directoryRepoPG struct{ pool *pgxpool.Pool }

func NewDirectoryRepoPG(pool *pgxpool.Pool) DirectoryRepository {
	return &directoryRepoPG{pool: pool}
}

func (r *directoryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *directoryRepoPG) LawyerExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lawyers WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *directoryRepoPG) LawyerContact(ctx context.Context, id int64) (Contact, error) {
	var c Contact
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT full_name, email FROM lawyers WHERE id = $1`, id).Scan(&c.Name, &c.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrLawyerNotFound
	}
	return c, err
}

func (r *directoryRepoPG) ClientContact(ctx context.Context, id int64) (Contact, error) {
	var c Contact
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT full_name, email FROM clients WHERE id = $1`, id).Scan(&c.Name, &c.Email)
	return c, err
}
