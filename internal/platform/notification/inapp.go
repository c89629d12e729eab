package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

var ErrNotificationNotFound = errors.New("notification not found")

// InApp is a notification shown inside the application.
type InApp struct {
	ID            uuid.UUID  `json:"id"`
	OutboxID      *uuid.UUID `json:"-"`
	RecipientID   uuid.UUID  `json:"recipient_id"`
	RecipientRole string     `json:"recipient_role"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// InAppStore persists in-app notifications.
type InAppStore interface {
	// Create is idempotent per OutboxID so redelivery never duplicates.
	Create(ctx context.Context, n *InApp) error
	ListForRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]*InApp, int, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID, at time.Time) error
}

type inAppPG struct {
	pool *pgxpool.Pool
}

func NewInAppStorePG(pool *pgxpool.Pool) InAppStore {
	return &inAppPG{pool: pool}
}

const inAppCols = `id, outbox_id, recipient_id, recipient_role, title, body, appointment_id, read_at, created_at`

func (s *inAppPG) Create(ctx context.Context, n *InApp) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO notification (`+inAppCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8)
		ON CONFLICT (outbox_id) DO NOTHING`,
		n.ID, n.OutboxID, n.RecipientID, n.RecipientRole, n.Title, n.Body, n.AppointmentID, n.CreatedAt)
	return err
}

func (s *inAppPG) ListForRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]*InApp, int, error) {
	where := ` WHERE recipient_id = $1`
	if unreadOnly {
		where += ` AND read_at IS NULL`
	}
	q := db.Conn(ctx, s.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM notification`+where, recipientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `SELECT `+inAppCols+` FROM notification`+where+
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`, recipientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*InApp
	for rows.Next() {
		n, err := scanInApp(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

func scanInApp(row pgx.Row) (*InApp, error) {
	var n InApp
	err := row.Scan(&n.ID, &n.OutboxID, &n.RecipientID, &n.RecipientRole, &n.Title, &n.Body,
		&n.AppointmentID, &n.ReadAt, &n.CreatedAt)
	return &n, err
}

func (s *inAppPG) MarkRead(ctx context.Context, id, recipientID uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE notification SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2`, id, recipientID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
