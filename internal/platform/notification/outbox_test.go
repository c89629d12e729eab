package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestOutbox_Enqueue(t *testing.T) {
	store := newMemStore()
	o := NewOutbox(store, NewTemplateEngine(), ChannelEmail)
	rid := uuid.New()

	err := o.Enqueue(context.Background(),
		Intent{Channel: ChannelInApp, RecipientID: &rid, RecipientRole: "patient", Template: TemplateAppointmentBooked},
		Intent{Channel: ChannelEmail, Address: "p@example.com", Template: TemplateAppointmentBooked},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := store.all()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.Status != StatusPending || m.Attempts != 0 {
			t.Errorf("message not pending: %+v", m)
		}
		if m.NextAttemptAt.IsZero() {
			t.Error("next_attempt_at not set")
		}
	}
}

func TestOutbox_DropsDisabledChannels(t *testing.T) {
	store := newMemStore()
	o := NewOutbox(store, NewTemplateEngine())
	if o.Enabled(ChannelSMS) {
		t.Fatal("sms should be disabled")
	}
	if !o.Enabled(ChannelInApp) {
		t.Fatal("in-app should always be enabled")
	}

	err := o.Enqueue(context.Background(),
		Intent{Channel: ChannelSMS, Address: "+15550100", Template: TemplateAppointmentBooked},
		Intent{Channel: ChannelEvent, Address: "k", Template: "appointment.booked"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.all()) != 0 {
		t.Error("disabled channels should not be stored")
	}
}

func TestOutbox_Validation(t *testing.T) {
	rid := uuid.New()
	tests := []struct {
		name   string
		intent Intent
	}{
		{"unknown template", Intent{Channel: ChannelInApp, RecipientID: &rid, Template: "nope"}},
		{"in-app without recipient", Intent{Channel: ChannelInApp, Template: TemplateAppointmentBooked}},
		{"email without address", Intent{Channel: ChannelEmail, Template: TemplateAppointmentBooked}},
		{"sms without address", Intent{Channel: ChannelSMS, Template: TemplateAppointmentBooked}},
	}
	o := NewOutbox(newMemStore(), NewTemplateEngine(), ChannelEmail, ChannelSMS)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := o.Enqueue(context.Background(), tt.intent); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestOutbox_EventSkipsTemplateCheck(t *testing.T) {
	store := newMemStore()
	o := NewOutbox(store, NewTemplateEngine(), ChannelEvent)
	err := o.Enqueue(context.Background(), Intent{Channel: ChannelEvent, Address: "appt-1", Template: "appointment.completed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.all()) != 1 {
		t.Error("expected event to be stored")
	}
}

func TestOutbox_StoreError(t *testing.T) {
	store := newMemStore()
	store.insertErr = errBoom
	o := NewOutbox(store, NewTemplateEngine())
	rid := uuid.New()
	err := o.Enqueue(context.Background(), Intent{Channel: ChannelInApp, RecipientID: &rid, Template: TemplateAppointmentBooked})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}
