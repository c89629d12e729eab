package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/notification"
)

func slotPayload(a *Appointment, p *identity.Patient, d *identity.Doctor, extra map[string]string) map[string]string {
	base := map[string]string{
		"appointment_id": a.ID.String(),
		"patient_name":   p.Name,
		"doctor_name":    d.Name,
		"date":           a.Date,
		"time":           a.Time,
		"status":         string(a.Status),
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// recipient returns one intent per channel the person has an address for.
// In-app is always included.
func recipient(template string, id uuid.UUID, role auth.Role, name string, email, phone *string, base map[string]string) []notification.Intent {
	payload := make(map[string]string, len(base)+1)
	for k, v := range base {
		payload[k] = v
	}
	payload["recipient_name"] = name
	rid := id

	intents := []notification.Intent{{
		Channel:       notification.ChannelInApp,
		RecipientID:   &rid,
		RecipientRole: string(role),
		Template:      template,
		Payload:       payload,
	}}
	if email != nil && *email != "" {
		intents = append(intents, notification.Intent{
			Channel:       notification.ChannelEmail,
			RecipientID:   &rid,
			RecipientRole: string(role),
			Address:       *email,
			Template:      template,
			Payload:       payload,
		})
	}
	if phone != nil && *phone != "" {
		intents = append(intents, notification.Intent{
			Channel:       notification.ChannelSMS,
			RecipientID:   &rid,
			RecipientRole: string(role),
			Address:       *phone,
			Template:      template,
			Payload:       payload,
		})
	}
	return intents
}

// notify enqueues template for the patient and the doctor on every channel
// they have an address for, plus one lifecycle event.
func (s *Service) notify(ctx context.Context, template string, a *Appointment, p *identity.Patient, d *identity.Doctor, extra map[string]string) error {
	base := slotPayload(a, p, d, extra)

	intents := recipient(template, p.ID, auth.RolePatient, p.Name, p.Email, p.Phone, base)
	intents = append(intents, recipient(template, d.ID, auth.RoleDoctor, d.Name, d.Email, d.Phone, base)...)

	if s.outbox.Enabled(notification.ChannelEvent) {
		intents = append(intents, notification.Intent{
			Channel:  notification.ChannelEvent,
			Address:  a.ID.String(),
			Template: template,
			Payload:  base,
		})
	}
	return s.outbox.Enqueue(ctx, intents...)
}

// notifyReleased tells a doctor that the appointment left their schedule.
// before is the appointment as it was on that doctor's calendar.
func (s *Service) notifyReleased(ctx context.Context, before *Appointment, p *identity.Patient, prev, next *identity.Doctor) error {
	base := slotPayload(before, p, prev, map[string]string{
		"reason": "reassigned to Dr. " + next.Name,
	})
	return s.outbox.Enqueue(ctx, recipient(notification.TemplateAppointmentCancelled,
		prev.ID, auth.RoleDoctor, prev.Name, prev.Email, prev.Phone, base)...)
}
