package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("bill not found")
	ErrInvalidState = errors.New("invalid payment state")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("bill belongs to another user")
)

// Filter narrows bill listings. Nil fields match everything.
type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    PaymentStatus
}

type Repository interface {
	// CreateIfAbsent inserts b unless the appointment already has a bill.
	// It reports whether b was inserted; b always ends up holding the
	// appointment's bill.
	CreateIfAbsent(ctx context.Context, b *Bill) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	// GetForUpdate loads and row-locks a bill. Must run in a transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Bill, error)
	UpdatePayment(ctx context.Context, b *Bill) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Bill, int, error)
}
