package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type storePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

const outboxCols = `id, channel, recipient_id, recipient_role, address, template, payload,
	status, attempts, last_error, next_attempt_at, created_at, sent_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var payload []byte
	if err := row.Scan(&m.ID, &m.Channel, &m.RecipientID, &m.RecipientRole, &m.Address, &m.Template, &payload,
		&m.Status, &m.Attempts, &m.LastError, &m.NextAttemptAt, &m.CreatedAt, &m.SentAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &m.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", m.ID, err)
		}
	}
	return &m, nil
}

func collectMessages(rows pgx.Rows) ([]*Message, error) {
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *storePG) Insert(ctx context.Context, msgs []*Message) error {
	batch := &pgx.Batch{}
	for _, m := range msgs {
		payload, err := json.Marshal(m.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		batch.Queue(`
			INSERT INTO notification_outbox (id, channel, recipient_id, recipient_role, address, template,
				payload, status, attempts, next_attempt_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)`,
			m.ID, m.Channel, m.RecipientID, m.RecipientRole, m.Address, m.Template,
			payload, m.Status, m.NextAttemptAt, m.CreatedAt)
	}

	var br pgx.BatchResults
	if tx := db.TxFromContext(ctx); tx != nil {
		br = tx.SendBatch(ctx, batch)
	} else {
		br = s.pool.SendBatch(ctx, batch)
	}
	defer br.Close()
	for range msgs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert outbox message: %w", err)
		}
	}
	return nil
}

func (s *storePG) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*Message, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		UPDATE notification_outbox SET next_attempt_at = $2, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxCols, now, leaseUntil, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox messages: %w", err)
	}
	return collectMessages(rows)
}

func (s *storePG) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.conn(ctx).Exec(ctx, `
		UPDATE notification_outbox SET status = 'sent', sent_at = $2, last_error = NULL
		WHERE id = $1`, id, at)
	return err
}

func (s *storePG) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string, next time.Time) error {
	_, err := s.conn(ctx).Exec(ctx, `
		UPDATE notification_outbox SET last_error = $2, next_attempt_at = $3
		WHERE id = $1 AND status = 'pending'`, id, lastErr, next)
	return err
}

func (s *storePG) MarkDead(ctx context.Context, id uuid.UUID, lastErr string) error {
	_, err := s.conn(ctx).Exec(ctx, `
		UPDATE notification_outbox SET status = 'dead', last_error = $2
		WHERE id = $1`, id, lastErr)
	return err
}

func (s *storePG) Requeue(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE notification_outbox SET status = 'pending', attempts = 0, next_attempt_at = $2
		WHERE id = $1 AND status <> 'sent'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *storePG) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	m, err := scanMessage(s.conn(ctx).QueryRow(ctx, `SELECT `+outboxCols+` FROM notification_outbox WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrMessageNotFound
	}
	return m, err
}

func (s *storePG) List(ctx context.Context, f MessageFilter, limit, offset int) ([]*Message, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Channel != "" {
		where += fmt.Sprintf(` AND channel = $%d`, idx)
		args = append(args, f.Channel)
		idx++
	}

	var total int
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM notification_outbox`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + outboxCols + ` FROM notification_outbox` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	msgs, err := collectMessages(rows)
	return msgs, total, err
}

func (s *storePG) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM notification_outbox WHERE status = 'pending'`).Scan(&n)
	return n, err
}
