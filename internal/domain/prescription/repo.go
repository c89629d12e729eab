package prescription

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("prescription not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrForbidden           = errors.New("appointment belongs to another doctor")
	ErrNotAttended         = errors.New("prescriptions can only be written for checked-in or completed appointments")
	ErrValidation          = errors.New("validation failed")
)

type Filter struct {
	PatientID     *uuid.UUID
	DoctorID      *uuid.UUID
	AppointmentID *uuid.UUID
}

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error)
}

// Visit is what a prescription needs to know about its appointment.
type Visit struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    string
}

// VisitLookup resolves an appointment id. It returns ErrAppointmentNotFound
// when the appointment does not exist.
type VisitLookup interface {
	LookupVisit(ctx context.Context, appointmentID uuid.UUID) (Visit, error)
}
