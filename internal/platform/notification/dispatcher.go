package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DispatchObserver receives delivery outcomes.
type DispatchObserver interface {
	Delivered(channel string, err error)
	DeadLettered(channel string)
	PendingObserved(n int)
}

type nopObserver struct{}

func (nopObserver) Delivered(string, error) {}
func (nopObserver) DeadLettered(string)     {}
func (nopObserver) PendingObserved(int)     {}

// DispatcherConfig tunes polling and retries.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// Lease is how long a claimed message stays invisible to other workers.
	Lease       time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	SendTimeout time.Duration
}

func (c *DispatcherConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
}

// permanentError marks failures retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(format string, args ...any) error {
	return permanentError{err: fmt.Errorf(format, args...)}
}

// Dispatcher drains the outbox.
type Dispatcher struct {
	store     Store
	inApp     InAppStore
	templates *TemplateEngine
	email     EmailSender
	sms       SMSSender
	events    EventPublisher
	obs       DispatchObserver
	logger    zerolog.Logger
	cfg       DispatcherConfig
	now       func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithEmailSender(s EmailSender) DispatcherOption { return func(d *Dispatcher) { d.email = s } }
func WithSMSSender(s SMSSender) DispatcherOption     { return func(d *Dispatcher) { d.sms = s } }
func WithEventPublisher(p EventPublisher) DispatcherOption {
	return func(d *Dispatcher) { d.events = p }
}
func WithObserver(o DispatchObserver) DispatcherOption { return func(d *Dispatcher) { d.obs = o } }

func NewDispatcher(store Store, inApp InAppStore, templates *TemplateEngine, cfg DispatcherConfig, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	cfg.defaults()
	d := &Dispatcher{
		store:     store,
		inApp:     inApp,
		templates: templates,
		obs:       nopObserver{},
		logger:    logger.With().Str("component", "outbox").Logger(),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another poll.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Dur("poll_interval", d.cfg.PollInterval).Msg("outbox dispatcher started")
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		n, err := d.DrainOnce(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("outbox poll failed")
		}
		if n >= d.cfg.BatchSize && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Info().Msg("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// DrainOnce claims and delivers one batch and returns its size.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	now := d.now().UTC()
	msgs, err := d.store.ClaimDue(ctx, now, now.Add(d.cfg.Lease), d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		d.process(ctx, m)
	}

	if pending, err := d.store.CountPending(ctx); err == nil {
		d.obs.PendingObserved(pending)
	}
	return len(msgs), nil
}

func (d *Dispatcher) process(ctx context.Context, m *Message) {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err := d.deliver(sendCtx, m)
	cancel()
	d.obs.Delivered(string(m.Channel), err)

	log := d.logger.With().
		Str("message_id", m.ID.String()).
		Str("channel", string(m.Channel)).
		Str("template", m.Template).
		Int("attempt", m.Attempts).
		Logger()

	if err == nil {
		if err := d.store.MarkSent(ctx, m.ID, d.now().UTC()); err != nil {
			log.Error().Err(err).Msg("mark outbox message sent")
		}
		return
	}

	var perm permanentError
	if errors.As(err, &perm) || m.Attempts >= d.cfg.MaxAttempts {
		log.Error().Err(err).Msg("notification dead-lettered")
		d.obs.DeadLettered(string(m.Channel))
		if err := d.store.MarkDead(ctx, m.ID, err.Error()); err != nil {
			log.Error().Err(err).Msg("mark outbox message dead")
		}
		return
	}

	next := d.now().UTC().Add(d.backoff(m.Attempts))
	log.Warn().Err(err).Time("next_attempt_at", next).Msg("notification delivery failed")
	if err := d.store.MarkFailed(ctx, m.ID, err.Error(), next); err != nil {
		log.Error().Err(err).Msg("mark outbox message failed")
	}
}

// backoff doubles per attempt starting at BaseBackoff, capped at MaxBackoff.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	return delay
}

// Event is the JSON body published on the event channel.
type Event struct {
	Type       string            `json:"type"`
	MessageID  uuid.UUID         `json:"message_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data"`
}

func (d *Dispatcher) deliver(ctx context.Context, m *Message) error {
	if m.Channel == ChannelEvent {
		if d.events == nil {
			return permanent("event channel is not configured")
		}
		body, err := json.Marshal(Event{Type: m.Template, MessageID: m.ID, OccurredAt: m.CreatedAt, Data: m.Payload})
		if err != nil {
			return permanent("encode event: %v", err)
		}
		return d.events.Publish(ctx, m.Address, m.Template, body)
	}

	r, err := d.templates.Render(m.Template, m.Payload)
	if err != nil {
		return permanentError{err: err}
	}

	switch m.Channel {
	case ChannelInApp:
		if m.RecipientID == nil {
			return permanent("in-app message has no recipient")
		}
		n := &InApp{
			OutboxID:      &m.ID,
			RecipientID:   *m.RecipientID,
			RecipientRole: m.RecipientRole,
			Title:         r.Title,
			Body:          r.Body,
			CreatedAt:     m.CreatedAt,
		}
		if id, err := uuid.Parse(m.Payload["appointment_id"]); err == nil {
			n.AppointmentID = &id
		}
		return d.inApp.Create(ctx, n)
	case ChannelEmail:
		if d.email == nil {
			return permanent("email channel is not configured")
		}
		return d.email.SendEmail(ctx, m.Address, r.Title, r.Body)
	case ChannelSMS:
		if d.sms == nil {
			return permanent("sms channel is not configured")
		}
		return d.sms.SendSMS(ctx, m.Address, r.SMS)
	}
	return permanent("unknown channel %q", m.Channel)
}
