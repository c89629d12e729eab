package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Medication is one line of a prescription, stored in the medications jsonb
// column.
type Medication struct {
	Name      string `json:"name" validate:"required,max=200"`
	Dosage    string `json:"dosage" validate:"required,max=100"`
	Frequency string `json:"frequency" validate:"required,max=100"`
	Duration  string `json:"duration,omitempty" validate:"max=100"`
}

type Prescription struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	AppointmentID uuid.UUID    `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID    `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID    `db:"doctor_id" json:"doctor_id"`
	Medications   []Medication `db:"medications" json:"medications"`
	Instructions  *string      `db:"instructions" json:"instructions,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

type CreateRequest struct {
	AppointmentID string       `json:"appointment_id" validate:"required,uuid"`
	Medications   []Medication `json:"medications" validate:"required,min=1,max=30,dive"`
	Instructions  *string      `json:"instructions,omitempty" validate:"omitempty,max=2000"`
}
