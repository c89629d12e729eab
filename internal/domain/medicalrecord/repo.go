package medicalrecord

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("medical record not found")
	ErrForbidden  = errors.New("medical record belongs to another doctor")
	ErrValidation = errors.New("validation failed")
)

// Filter narrows record listings.
type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
}

type Repository interface {
	// CreateIfAbsent inserts m unless the appointment already has a record,
	// and reports whether it did. m always ends up holding the stored record.
	CreateIfAbsent(ctx context.Context, m *MedicalRecord) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*MedicalRecord, error)
	Update(ctx context.Context, m *MedicalRecord) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*MedicalRecord, int, error)
}
