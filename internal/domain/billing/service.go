package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/db"
)

// Charge describes the bill to raise for a completed appointment.
type Charge struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	Amount        float64
}

type Service struct {
	repo Repository
	tx   db.Transactor
	now  func() time.Time
}

func NewService(repo Repository, tx db.Transactor) *Service {
	return &Service{repo: repo, tx: tx, now: time.Now}
}

// EnsureForAppointment creates the appointment's bill unless one exists. It
// returns the bill and whether this call created it.
func (s *Service) EnsureForAppointment(ctx context.Context, ch Charge) (*Bill, bool, error) {
	if ch.AppointmentID == uuid.Nil || ch.PatientID == uuid.Nil || ch.DoctorID == uuid.Nil {
		return nil, false, fmt.Errorf("%w: appointment, patient and doctor are required", ErrValidation)
	}
	if ch.Amount < 0 {
		return nil, false, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	b := &Bill{
		AppointmentID: ch.AppointmentID,
		PatientID:     ch.PatientID,
		DoctorID:      ch.DoctorID,
		Amount:        roundCents(ch.Amount),
		PaymentStatus: StatusUnpaid,
	}
	created, err := s.repo.CreateIfAbsent(ctx, b)
	if err != nil {
		return nil, false, err
	}
	return b, created, nil
}

func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Bill, error) {
	return s.repo.GetByAppointment(ctx, appointmentID)
}

func (s *Service) ListBills(ctx context.Context, f Filter, limit, offset int) ([]*Bill, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown payment status %q", ErrValidation, f.Status)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Pay settles an unpaid bill. The bill row is locked for the duration so
// concurrent payments cannot both succeed.
func (s *Service) Pay(ctx context.Context, id uuid.UUID, p Payment) (*Bill, error) {
	var out *Bill
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := b.ApplyPayment(p, s.now().UTC()); err != nil {
			return err
		}
		if err := s.repo.UpdatePayment(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// Refund returns part or all of a paid bill.
func (s *Service) Refund(ctx context.Context, id uuid.UUID, r Refund) (*Bill, error) {
	var out *Bill
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := b.ApplyRefund(r); err != nil {
			return err
		}
		if err := s.repo.UpdatePayment(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}
