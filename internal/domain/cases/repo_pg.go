package cases

import (
	"context"
	"errors"

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

// =========== Case Repository ===========

type caseRepoPG struct{ pool *pgxpool.Pool }

func NewCaseRepoPG(pool *pgxpool.Pool) CaseRepository { return &caseRepoPG{pool: pool} }

func (r *caseRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const caseCols = `id, client_id, lawyer_id, title, status, created_at`

func (r *caseRepoPG) GetByID(ctx context.Context, id int64) (*Case, error) {
	var c Case
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseCols+` FROM cases WHERE id = $1`, id).
		Scan(&c.ID, &c.ClientID, &c.LawyerID, &c.Title, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *caseRepoPG) ListForUser(ctx context.Context, role string, userID int64, limit, offset int) ([]*Case, int, error) {
	col := "client_id"
	if role == "lawyer" {
		col = "lawyer_id"
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM cases WHERE `+col+` = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+caseCols+` FROM cases WHERE `+col+` = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Case
	for rows.Next() {
		var c Case
		if err := rows.Scan(&c.ID, &c.ClientID, &c.LawyerID, &c.Title, &c.Status, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &c)
	}
	return items, total, rows.Err()
}

// =========== Message Repository ===========

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository { return &messageRepoPG{pool: pool} }

func (r *messageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *messageRepoPG) Insert(ctx context.Context, m *Message) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO case_messages (case_id, sender_id, sender_role, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		m.CaseID, m.SenderID, m.SenderRole, m.Body).
		Scan(&m.ID, &m.CreatedAt)
}

func (r *messageRepoPG) ListByCase(ctx context.Context, caseID int64, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM case_messages WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, sender_id, sender_role, body, created_at
		FROM case_messages
		WHERE case_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`, caseID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.CaseID, &m.SenderID, &m.SenderRole, &m.Body, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &m)
	}
	return items, total, rows.Err()
}
