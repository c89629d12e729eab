package notification

import (
	"strings"
	"testing"
)

func TestChannel_Valid(t *testing.T) {
	for _, c := range []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelEvent} {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if Channel("fax").Valid() {
		t.Error("fax should not be valid")
	}
}

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()
	r, err := e.Render(TemplateAppointmentBooked, map[string]string{
		"recipient_name": "Asha",
		"patient_name":   "Asha",
		"doctor_name":    "Rao",
		"date":           "2026-11-02",
		"time":           "10:30",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Appointment booked" {
		t.Errorf("unexpected title %q", r.Title)
	}
	if !strings.Contains(r.Body, "Dr. Rao") || !strings.Contains(r.Body, "2026-11-02 at 10:30") {
		t.Errorf("placeholders not replaced: %q", r.Body)
	}
	if strings.Contains(r.SMS, "{{") {
		t.Errorf("sms still has placeholders: %q", r.SMS)
	}
}

func TestTemplateEngine_UnknownPlaceholderKept(t *testing.T) {
	e := NewTemplateEngine()
	r, err := e.Render(TemplateAppointmentCancelled, map[string]string{"date": "2026-11-02"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(r.Body, "{{reason}}") {
		t.Errorf("expected missing key to stay, got %q", r.Body)
	}
}

func TestTemplateEngine_SMSFallsBackToBody(t *testing.T) {
	e := NewTemplateEngine()
	e.Register(Template{ID: "plain", Title: "Hi", Body: "Hello {{name}}"})
	r, err := e.Render("plain", map[string]string{"name": "Ravi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.SMS != "Hello Ravi" {
		t.Errorf("expected body as sms, got %q", r.SMS)
	}
	if !e.Has("plain") {
		t.Error("registered template not found")
	}
}

func TestTemplateEngine_NotFound(t *testing.T) {
	if _, err := NewTemplateEngine().Render("missing", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}
