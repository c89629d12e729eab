package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of an outbox message.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusDead    Status = "dead"
)

var ErrMessageNotFound = errors.New("outbox message not found")

// Message is one persisted delivery intent.
type Message struct {
	ID            uuid.UUID         `json:"id"`
	Channel       Channel           `json:"channel"`
	RecipientID   *uuid.UUID        `json:"recipient_id,omitempty"`
	RecipientRole string            `json:"recipient_role,omitempty"`
	Address       string            `json:"address,omitempty"`
	Template      string            `json:"template"`
	Payload       map[string]string `json:"payload"`
	Status        Status            `json:"status"`
	Attempts      int               `json:"attempts"`
	LastError     *string           `json:"last_error,omitempty"`
	NextAttemptAt time.Time         `json:"next_attempt_at"`
	CreatedAt     time.Time         `json:"created_at"`
	SentAt        *time.Time        `json:"sent_at,omitempty"`
}

// Intent is what producers hand to the outbox.
type Intent struct {
	Channel       Channel
	RecipientID   *uuid.UUID
	RecipientRole string
	// Address is the email, phone number or event key for the channel.
	Address  string
	Template string
	Payload  map[string]string
}

// MessageFilter narrows outbox listings.
type MessageFilter struct {
	Status  Status
	Channel Channel
}

// Store persists outbox messages.
type Store interface {
	Insert(ctx context.Context, msgs []*Message) error
	// ClaimDue leases up to limit due pending messages until leaseUntil and
	// increments their attempt counters. Concurrent callers never receive
	// the same message.
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*Message, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastErr string, next time.Time) error
	MarkDead(ctx context.Context, id uuid.UUID, lastErr string) error
	Requeue(ctx context.Context, id uuid.UUID, at time.Time) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	List(ctx context.Context, f MessageFilter, limit, offset int) ([]*Message, int, error)
	CountPending(ctx context.Context) (int, error)
}

// Outbox validates intents and writes them through the Store. Called inside
// the producer's transaction, the messages commit or roll back with it.
type Outbox struct {
	store     Store
	templates *TemplateEngine
	enabled   map[Channel]bool
	now       func() time.Time
}

// NewOutbox accepts intents only for the given channels; intents for other
// channels are dropped. In-app is always enabled.
func NewOutbox(store Store, templates *TemplateEngine, channels ...Channel) *Outbox {
	enabled := map[Channel]bool{ChannelInApp: true}
	for _, c := range channels {
		enabled[c] = true
	}
	return &Outbox{store: store, templates: templates, enabled: enabled, now: time.Now}
}

// Enabled reports whether intents for c are accepted.
func (o *Outbox) Enabled(c Channel) bool { return o.enabled[c] }

func (o *Outbox) Enqueue(ctx context.Context, intents ...Intent) error {
	now := o.now().UTC()
	msgs := make([]*Message, 0, len(intents))
	for _, in := range intents {
		if !o.enabled[in.Channel] {
			continue
		}
		if err := o.validate(in); err != nil {
			return err
		}
		msgs = append(msgs, &Message{
			ID:            uuid.New(),
			Channel:       in.Channel,
			RecipientID:   in.RecipientID,
			RecipientRole: in.RecipientRole,
			Address:       in.Address,
			Template:      in.Template,
			Payload:       in.Payload,
			Status:        StatusPending,
			NextAttemptAt: now,
			CreatedAt:     now,
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := o.store.Insert(ctx, msgs); err != nil {
		return fmt.Errorf("enqueue notifications: %w", err)
	}
	return nil
}

func (o *Outbox) validate(in Intent) error {
	if !in.Channel.Valid() {
		return fmt.Errorf("unknown channel %q", in.Channel)
	}
	if in.Channel != ChannelEvent && !o.templates.Has(in.Template) {
		return fmt.Errorf("unknown template %q", in.Template)
	}
	switch in.Channel {
	case ChannelInApp:
		if in.RecipientID == nil {
			return errors.New("in-app notification requires a recipient")
		}
	case ChannelEmail, ChannelSMS:
		if in.Address == "" {
			return fmt.Errorf("%s notification requires an address", in.Channel)
		}
	}
	return nil
}
