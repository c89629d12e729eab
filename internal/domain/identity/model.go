package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Name             string     `db:"name" json:"name" validate:"required,max=200"`
	Email            *string    `db:"email" json:"email,omitempty" validate:"omitempty,email"`
	Phone            *string    `db:"phone" json:"phone,omitempty" validate:"omitempty,max=32"`
	DateOfBirth      *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender           *string    `db:"gender" json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	BloodGroup       *string    `db:"blood_group" json:"blood_group,omitempty" validate:"omitempty,max=3"`
	Address          *string    `db:"address" json:"address,omitempty"`
	EmergencyContact *string    `db:"emergency_contact" json:"emergency_contact,omitempty"`
	Active           bool       `db:"active" json:"active"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctor table. ConsultationFee is nil when the doctor
// has no fee of their own and the hospital default applies.
type Doctor struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Name            string     `db:"name" json:"name" validate:"required,max=200"`
	Email           *string    `db:"email" json:"email,omitempty" validate:"omitempty,email"`
	Phone           *string    `db:"phone" json:"phone,omitempty" validate:"omitempty,max=32"`
	Specialization  string     `db:"specialization" json:"specialization" validate:"max=120"`
	DepartmentID    *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	DepartmentName  *string    `db:"-" json:"department,omitempty"`
	ConsultationFee *float64   `db:"consultation_fee" json:"consultation_fee,omitempty" validate:"omitempty,gte=0"`
	WorkStart       string     `db:"work_start" json:"work_start" validate:"omitempty,hhmm"`
	WorkEnd         string     `db:"work_end" json:"work_end" validate:"omitempty,hhmm"`
	AvailableDays   []string   `db:"available_days" json:"available_days" validate:"dive,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	Active          bool       `db:"active" json:"active"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Default working hours.
const (
	DefaultWorkStart = "09:00"
	DefaultWorkEnd   = "17:00"
)

// SlotLength is the granularity of appointment times.
const SlotLength = 30 * time.Minute

// Fee returns the doctor's consultation fee, or fallback when none is set.
func (d *Doctor) Fee(fallback float64) float64 {
	if d.ConsultationFee != nil {
		return *d.ConsultationFee
	}
	return fallback
}

// WorksOn reports whether the doctor sees patients on the weekday of date.
// An empty AvailableDays means every day.
func (d *Doctor) WorksOn(date time.Time) bool {
	if len(d.AvailableDays) == 0 {
		return true
	}
	day := strings.ToLower(date.Weekday().String())
	for _, s := range d.AvailableDays {
		if strings.EqualFold(s, day) {
			return true
		}
	}
	return false
}

// Slots lists the HH:MM start times of the doctor's half-hour slots. A slot
// must end by WorkEnd.
func (d *Doctor) Slots() ([]string, error) {
	start, end, err := d.hours()
	if err != nil {
		return nil, err
	}
	var slots []string
	for t := start; !t.Add(SlotLength).After(end); t = t.Add(SlotLength) {
		slots = append(slots, t.Format("15:04"))
	}
	return slots, nil
}

// InHours reports whether a slot starting at hhmm fits the working hours.
func (d *Doctor) InHours(hhmm string) (bool, error) {
	start, end, err := d.hours()
	if err != nil {
		return false, err
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return false, fmt.Errorf("invalid time %q", hhmm)
	}
	return !t.Before(start) && !t.Add(SlotLength).After(end), nil
}

func (d *Doctor) hours() (time.Time, time.Time, error) {
	ws, we := d.WorkStart, d.WorkEnd
	if ws == "" {
		ws = DefaultWorkStart
	}
	if we == "" {
		we = DefaultWorkEnd
	}
	start, err := time.Parse("15:04", ws)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid work_start %q", ws)
	}
	end, err := time.Parse("15:04", we)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid work_end %q", we)
	}
	return start, end, nil
}

// Receptionist maps to the receptionist table.
type Receptionist struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name" validate:"required,max=200"`
	Email        *string    `db:"email" json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string    `db:"phone" json:"phone,omitempty" validate:"omitempty,max=32"`
	DepartmentID *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	Shift        *string    `db:"shift" json:"shift,omitempty" validate:"omitempty,oneof=morning evening night"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ListFilter narrows directory listings. Empty fields match everything.
type ListFilter struct {
	Search         string
	DepartmentID   *uuid.UUID
	Specialization string
}
