package medicalrecord

import (
	"time"

	"github.com/google/uuid"
)

// SkeletonDiagnosis is the diagnosis of a record created on completion,
// before the doctor writes the real one.
const SkeletonDiagnosis = "Consultation completed - awaiting detailed diagnosis"

// MedicalRecord maps to the medical_record table. There is at most one
// record per appointment.
type MedicalRecord struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AppointmentID uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Diagnosis     string     `db:"diagnosis" json:"diagnosis"`
	Symptoms      *string    `db:"symptoms" json:"symptoms,omitempty"`
	Treatment     *string    `db:"treatment" json:"treatment,omitempty"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	FollowUpDate  *time.Time `db:"follow_up_date" json:"follow_up_date,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// IsSkeleton reports whether the doctor has not yet filled in the record.
func (m *MedicalRecord) IsSkeleton() bool {
	return m.Diagnosis == SkeletonDiagnosis
}

// Update is the doctor's edit of a record. Nil fields are left unchanged.
type Update struct {
	Diagnosis    *string `json:"diagnosis,omitempty" validate:"omitempty,min=1,max=2000"`
	Symptoms     *string `json:"symptoms,omitempty" validate:"omitempty,max=2000"`
	Treatment    *string `json:"treatment,omitempty" validate:"omitempty,max=2000"`
	Notes        *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
	FollowUpDate *string `json:"follow_up_date,omitempty" validate:"omitempty,date"`
}

// Apply copies the set fields of u onto m.
func (u Update) Apply(m *MedicalRecord) error {
	if u.Diagnosis != nil {
		m.Diagnosis = *u.Diagnosis
	}
	if u.Symptoms != nil {
		m.Symptoms = u.Symptoms
	}
	if u.Treatment != nil {
		m.Treatment = u.Treatment
	}
	if u.Notes != nil {
		m.Notes = u.Notes
	}
	if u.FollowUpDate != nil {
		d, err := time.Parse(time.DateOnly, *u.FollowUpDate)
		if err != nil {
			return err
		}
		m.FollowUpDate = &d
	}
	return nil
}
