package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrSlotConflict      = errors.New("doctor already has an appointment at this time")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrDoctorUnavailable = errors.New("doctor is not available at this time")
	ErrPastSlot          = errors.New("appointment time is in the past")
	ErrHasRecords        = errors.New("appointment has billing or clinical records and cannot be deleted")
)

// Filter narrows appointment listings. Dates are YYYY-MM-DD and inclusive.
type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    Status
	Date      string
	From      string
	To        string
}

type Repository interface {
	// Create and Update return ErrSlotConflict when the write would give
	// the doctor two slot-holding appointments at the same time.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	// HasConflict reports whether another slot-holding appointment occupies
	// the doctor's slot. excludeID skips the appointment being moved.
	HasConflict(ctx context.Context, doctorID uuid.UUID, date, hhmm string, excludeID *uuid.UUID) (bool, error)
	// TakenSlots lists the HH:MM times held on the doctor's date.
	TakenSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
}
