// Package notification delivers appointment notifications through a
// transactional outbox. Producers enqueue intents in the same transaction as
// their state change; the Dispatcher delivers them to in-app, email, SMS and
// event channels and retries each message independently.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Channel is the delivery medium of an outbox message.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelEvent Channel = "event"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelEvent:
		return true
	}
	return false
}

// EmailSender sends a rendered email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender sends a rendered text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// EventPublisher publishes a lifecycle event keyed for partitioning.
type EventPublisher interface {
	Publish(ctx context.Context, key string, eventType string, payload []byte) error
}

// Template defines a reusable notification template. Placeholders use the
// {{key}} form.
type Template struct {
	ID    string
	Title string
	Body  string
	SMS   string
}

// Built-in template ids.
const (
	TemplateAppointmentBooked      = "appointment-booked"
	TemplateAppointmentCheckedIn   = "appointment-checked-in"
	TemplateAppointmentCompleted   = "appointment-completed"
	TemplateAppointmentCancelled   = "appointment-cancelled"
	TemplateAppointmentRescheduled = "appointment-rescheduled"
	TemplateAppointmentUpdated     = "appointment-updated"
	TemplateBillGenerated          = "bill-generated"
)

// TemplateEngine renders templates by id.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range builtInTemplates {
		e.Register(t)
	}
	return e
}

var builtInTemplates = []Template{
	{
		ID:    TemplateAppointmentBooked,
		Title: "Appointment booked",
		Body:  "Dear {{recipient_name}}, an appointment between {{patient_name}} and Dr. {{doctor_name}} is booked for {{date}} at {{time}}.",
		SMS:   "Appointment booked: {{patient_name}} with Dr. {{doctor_name}} on {{date}} {{time}}.",
	},
	{
		ID:    TemplateAppointmentCheckedIn,
		Title: "Patient checked in",
		Body:  "Dear {{recipient_name}}, {{patient_name}} has checked in for the {{time}} appointment with Dr. {{doctor_name}}.",
		SMS:   "{{patient_name}} checked in for {{time}} with Dr. {{doctor_name}}.",
	},
	{
		ID:    TemplateAppointmentCompleted,
		Title: "Appointment completed",
		Body:  "Dear {{recipient_name}}, the appointment of {{date}} at {{time}} with Dr. {{doctor_name}} is complete. A bill of {{amount}} has been generated.",
		SMS:   "Appointment on {{date}} completed. Bill: {{amount}}.",
	},
	{
		ID:    TemplateAppointmentCancelled,
		Title: "Appointment cancelled",
		Body:  "Dear {{recipient_name}}, the appointment on {{date}} at {{time}} with Dr. {{doctor_name}} was cancelled. Reason: {{reason}}",
		SMS:   "Appointment on {{date}} {{time}} cancelled.",
	},
	{
		ID:    TemplateAppointmentRescheduled,
		Title: "Appointment rescheduled",
		Body:  "Dear {{recipient_name}}, the appointment between {{patient_name}} and Dr. {{doctor_name}} moved to {{date}} at {{time}}.",
		SMS:   "Appointment moved to {{date}} {{time}} with Dr. {{doctor_name}}.",
	},
	{
		ID:    TemplateAppointmentUpdated,
		Title: "Appointment updated",
		Body:  "Dear {{recipient_name}}, the appointment with Dr. {{doctor_name}} on {{date}} at {{time}} was updated.",
		SMS:   "Appointment on {{date}} {{time}} updated.",
	},
	{
		ID:    TemplateBillGenerated,
		Title: "Bill generated",
		Body:  "Dear {{recipient_name}}, a bill of {{amount}} is due for your appointment on {{date}}.",
		SMS:   "Bill of {{amount}} generated for {{date}}.",
	},
}

// Register adds or replaces a template.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Has reports whether id is registered.
func (e *TemplateEngine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[id]
	return ok
}

// Rendered is a template filled with message data.
type Rendered struct {
	Title string
	Body  string
	SMS   string
}

// Render replaces {{key}} placeholders with data. Unknown placeholders are
// left as-is.
func (e *TemplateEngine) Render(id string, data map[string]string) (Rendered, error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return Rendered{}, fmt.Errorf("template %q not found", id)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := Rendered{Title: r.Replace(t.Title), Body: r.Replace(t.Body), SMS: r.Replace(t.SMS)}
	if out.SMS == "" {
		out.SMS = out.Body
	}
	return out, nil
}
