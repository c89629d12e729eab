package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/identity"
)

// Appointment maps to the appointment table. Date is YYYY-MM-DD and Time is
// the HH:MM start of a half-hour slot.
type Appointment struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID           uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Date               string     `db:"appointment_date" json:"date"`
	Time               string     `db:"appointment_time" json:"time"`
	Reason             string     `db:"reason" json:"reason"`
	Status             Status     `db:"status" json:"status"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedBy          string     `db:"created_by" json:"created_by"`
	CheckedInAt        *time.Time `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	RescheduledAt      *time.Time `db:"rescheduled_at" json:"rescheduled_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Start is the slot start in loc.
func (a *Appointment) Start(loc *time.Location) (time.Time, error) {
	return slotStart(a.Date, a.Time, loc)
}

func slotStart(date, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly+" 15:04", date+" "+hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date or time", ErrValidation)
	}
	return t, nil
}

// validSlotTime checks the HH:MM format and half-hour granularity.
func validSlotTime(hhmm string) error {
	t, err := time.Parse("15:04", hhmm)
	if err != nil || len(hhmm) != 5 {
		return fmt.Errorf("%w: time must be in HH:MM format", ErrValidation)
	}
	if t.Minute() != 0 && t.Minute() != 30 {
		return fmt.Errorf("%w: time must be on the hour or half hour", ErrValidation)
	}
	return nil
}

func validDate(date string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be in YYYY-MM-DD format", ErrValidation)
	}
	return d, nil
}

// PatientSummary is the patient as embedded in responses.
type PatientSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
	Phone *string   `json:"phone,omitempty"`
}

// DoctorSummary is the doctor as embedded in responses.
type DoctorSummary struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Specialization  string    `json:"specialization"`
	Department      *string   `json:"department,omitempty"`
	ConsultationFee *float64  `json:"consultation_fee,omitempty"`
}

// View is an appointment populated with its patient and doctor.
type View struct {
	*Appointment
	Patient *PatientSummary `json:"patient"`
	Doctor  *DoctorSummary  `json:"doctor"`
}

func newView(a *Appointment, p *identity.Patient, d *identity.Doctor) *View {
	v := &View{Appointment: a}
	if p != nil {
		v.Patient = &PatientSummary{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone}
	}
	if d != nil {
		v.Doctor = &DoctorSummary{
			ID:              d.ID,
			Name:            d.Name,
			Specialization:  d.Specialization,
			Department:      d.DepartmentName,
			ConsultationFee: d.ConsultationFee,
		}
	}
	return v
}

// BookRequest creates an appointment. PatientID may be omitted when a
// patient books for themselves.
type BookRequest struct {
	PatientID string `json:"patient_id" validate:"omitempty,uuid"`
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
	Date      string `json:"date" validate:"required,date"`
	Time      string `json:"time" validate:"required,hhmm"`
	Reason    string `json:"reason" validate:"max=1000"`
	Status    string `json:"status,omitempty" validate:"omitempty,oneof=booked scheduled"`
}

// UpdateRequest edits an appointment's details. Nil fields are unchanged.
// Moving the slot follows the same checks as a reschedule.
type UpdateRequest struct {
	DoctorID *string `json:"doctor_id,omitempty" validate:"omitempty,uuid"`
	Date     *string `json:"date,omitempty" validate:"omitempty,date"`
	Time     *string `json:"time,omitempty" validate:"omitempty,hhmm"`
	Reason   *string `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

type RescheduleRequest struct {
	Date   string `json:"date" validate:"required,date"`
	Time   string `json:"time" validate:"required,hhmm"`
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// StatusRequest is the receptionist's single status endpoint.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// Availability lists a doctor's free and taken slots on a date.
type Availability struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Working  bool      `json:"working"`
	Slots    []string  `json:"available_slots"`
	Booked   []string  `json:"booked_slots"`
}
