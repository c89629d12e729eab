package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breakers around external senders.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
}

func newBreaker(name string, s BreakerSettings, logger zerolog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// BreakerEmailSender fails fast while the wrapped sender keeps failing.
type BreakerEmailSender struct {
	next EmailSender
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerEmailSender(next EmailSender, s BreakerSettings, logger zerolog.Logger) *BreakerEmailSender {
	return &BreakerEmailSender{next: next, cb: newBreaker("email", s, logger)}
}

func (b *BreakerEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.SendEmail(ctx, to, subject, body)
	})
	return err
}

// BreakerSMSSender fails fast while the wrapped sender keeps failing.
type BreakerSMSSender struct {
	next SMSSender
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerSMSSender(next SMSSender, s BreakerSettings, logger zerolog.Logger) *BreakerSMSSender {
	return &BreakerSMSSender{next: next, cb: newBreaker("sms", s, logger)}
}

func (b *BreakerSMSSender) SendSMS(ctx context.Context, to, body string) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.SendSMS(ctx, to, body)
	})
	return err
}
