package notification

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDispatcher(store *memStore, inApp *memInApp, opts ...DispatcherOption) (*Dispatcher, *testClock) {
	clock := &testClock{t: time.Now().UTC().Add(time.Minute)}
	d := NewDispatcher(store, inApp, NewTemplateEngine(), DispatcherConfig{
		BatchSize:   10,
		MaxAttempts: 3,
		Lease:       time.Minute,
		BaseBackoff: time.Second,
		MaxBackoff:  time.Minute,
	}, zerolog.Nop(), opts...)
	d.now = clock.now
	return d, clock
}

func enqueue(t *testing.T, store *memStore, channels []Channel, intents ...Intent) {
	t.Helper()
	o := NewOutbox(store, NewTemplateEngine(), channels...)
	if err := o.Enqueue(context.Background(), intents...); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestDispatcher_DeliversInApp(t *testing.T) {
	store := newMemStore()
	inApp := &memInApp{}
	obs := newCountingObserver()
	d, _ := newTestDispatcher(store, inApp, WithObserver(obs))

	rid := uuid.New()
	apptID := uuid.New()
	enqueue(t, store, nil, Intent{
		Channel:       ChannelInApp,
		RecipientID:   &rid,
		RecipientRole: "patient",
		Template:      TemplateAppointmentCompleted,
		Payload:       map[string]string{"appointment_id": apptID.String(), "amount": "500.00", "doctor_name": "Rao"},
	})

	n, err := d.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 processed, got %d", n)
	}
	if len(inApp.items) != 1 {
		t.Fatalf("expected 1 in-app notification, got %d", len(inApp.items))
	}
	got := inApp.items[0]
	if got.RecipientID != rid || got.AppointmentID == nil || *got.AppointmentID != apptID {
		t.Errorf("unexpected notification %+v", got)
	}
	if !strings.Contains(got.Body, "500.00") {
		t.Errorf("body not rendered: %q", got.Body)
	}
	if store.all()[0].Status != StatusSent {
		t.Errorf("expected sent, got %s", store.all()[0].Status)
	}
	if obs.delivered["in_app"] != 1 || obs.pending != 0 {
		t.Errorf("unexpected observer state %+v", obs)
	}
}

func TestDispatcher_FailureIsolatedPerMessage(t *testing.T) {
	store := newMemStore()
	inApp := &memInApp{}
	email := &fakeEmail{err: errBoom}
	d, clock := newTestDispatcher(store, inApp, WithEmailSender(email))

	rid := uuid.New()
	enqueue(t, store, []Channel{ChannelEmail},
		Intent{Channel: ChannelInApp, RecipientID: &rid, Template: TemplateAppointmentBooked},
		Intent{Channel: ChannelEmail, Address: "p@example.com", Template: TemplateAppointmentBooked},
	)

	if _, err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, m := range store.all() {
		switch m.Channel {
		case ChannelInApp:
			if m.Status != StatusSent {
				t.Errorf("in-app should be sent despite email failure, got %s", m.Status)
			}
		case ChannelEmail:
			if m.Status != StatusPending || m.LastError == nil {
				t.Errorf("email should stay pending with an error, got %+v", m)
			}
			if want := clock.t.Add(time.Second); !m.NextAttemptAt.Equal(want) {
				t.Errorf("expected retry at %v, got %v", want, m.NextAttemptAt)
			}
		}
	}
	if len(inApp.items) != 1 {
		t.Errorf("expected in-app delivered once, got %d", len(inApp.items))
	}
}

func TestDispatcher_DeadLettersAfterMaxAttempts(t *testing.T) {
	store := newMemStore()
	sms := &fakeSMS{err: errBoom}
	obs := newCountingObserver()
	d, clock := newTestDispatcher(store, &memInApp{}, WithSMSSender(sms), WithObserver(obs))

	enqueue(t, store, []Channel{ChannelSMS}, Intent{Channel: ChannelSMS, Address: "+15550100", Template: TemplateAppointmentCancelled})

	for i := 0; i < 3; i++ {
		if _, err := d.DrainOnce(context.Background()); err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
		clock.advance(time.Hour)
	}
	m := store.all()[0]
	if m.Status != StatusDead {
		t.Fatalf("expected dead after 3 attempts, got %s (attempts=%d)", m.Status, m.Attempts)
	}
	if sms.calls != 3 {
		t.Errorf("expected 3 send attempts, got %d", sms.calls)
	}
	if obs.dead["sms"] != 1 || obs.failed["sms"] != 3 {
		t.Errorf("unexpected observer counts %+v", obs)
	}

	// Dead messages are not claimed again.
	if n, _ := d.DrainOnce(context.Background()); n != 0 {
		t.Errorf("expected nothing to claim, got %d", n)
	}
}

func TestDispatcher_UnconfiguredChannelIsDead(t *testing.T) {
	store := newMemStore()
	d, _ := newTestDispatcher(store, &memInApp{})
	enqueue(t, store, []Channel{ChannelEmail}, Intent{Channel: ChannelEmail, Address: "p@example.com", Template: TemplateAppointmentBooked})

	if _, err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := store.all()[0]
	if m.Status != StatusDead {
		t.Errorf("expected dead, got %s", m.Status)
	}
	if m.LastError == nil || !strings.Contains(*m.LastError, "not configured") {
		t.Errorf("unexpected last error %v", m.LastError)
	}
}

func TestDispatcher_PublishesEvent(t *testing.T) {
	store := newMemStore()
	pub := &fakePublisher{}
	d, _ := newTestDispatcher(store, &memInApp{}, WithEventPublisher(pub))

	enqueue(t, store, []Channel{ChannelEvent}, Intent{
		Channel:  ChannelEvent,
		Address:  "appt-1",
		Template: "appointment.completed",
		Payload:  map[string]string{"status": "completed"},
	})
	if _, err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.key != "appt-1" || ev.eventType != "appointment.completed" {
		t.Errorf("unexpected event %+v", ev)
	}
	var body Event
	if err := json.Unmarshal(ev.payload, &body); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if body.Type != "appointment.completed" || body.Data["status"] != "completed" {
		t.Errorf("unexpected event body %+v", body)
	}
}

func TestDispatcher_EmailRendered(t *testing.T) {
	store := newMemStore()
	email := &fakeEmail{}
	d, _ := newTestDispatcher(store, &memInApp{}, WithEmailSender(email))
	enqueue(t, store, []Channel{ChannelEmail}, Intent{
		Channel:  ChannelEmail,
		Address:  "doc@example.com",
		Template: TemplateAppointmentCheckedIn,
		Payload:  map[string]string{"patient_name": "Asha", "time": "10:30"},
	})
	if _, err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}
	if email.sent[0].to != "doc@example.com" || email.sent[0].subject != "Patient checked in" {
		t.Errorf("unexpected email %+v", email.sent[0])
	}
}

func TestDispatcher_Backoff(t *testing.T) {
	d, _ := newTestDispatcher(newMemStore(), &memInApp{})
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{10, time.Minute},
	}
	for _, tt := range tests {
		if got := d.backoff(tt.attempts); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	d, _ := newTestDispatcher(newMemStore(), &memInApp{})
	d.cfg.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
