package billing

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the settlement state of a bill.
type PaymentStatus string

const (
	StatusUnpaid            PaymentStatus = "unpaid"
	StatusPaid              PaymentStatus = "paid"
	StatusRefunded          PaymentStatus = "refunded"
	StatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPaid, StatusRefunded, StatusPartiallyRefunded:
		return true
	}
	return false
}

// Bill maps to the bill table. There is at most one bill per appointment.
type Bill struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	AppointmentID    uuid.UUID     `db:"appointment_id" json:"appointment_id"`
	PatientID        uuid.UUID     `db:"patient_id" json:"patient_id"`
	DoctorID         uuid.UUID     `db:"doctor_id" json:"doctor_id"`
	Amount           float64       `db:"amount" json:"amount"`
	AmountPaid       float64       `db:"amount_paid" json:"amount_paid"`
	AmountRefunded   float64       `db:"amount_refunded" json:"amount_refunded"`
	PaymentStatus    PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentMethod    *string       `db:"payment_method" json:"payment_method,omitempty"`
	PaymentReference *string       `db:"payment_reference" json:"payment_reference,omitempty"`
	PaidAt           *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// Payment settles a bill.
type Payment struct {
	// Amount defaults to the bill amount. Partial payments are not accepted.
	Amount    *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Method    string   `json:"payment_method" validate:"required,oneof=cash card upi insurance online"`
	Reference *string  `json:"payment_reference,omitempty" validate:"omitempty,max=120"`
}

// Refund returns money for a paid bill.
type Refund struct {
	// Amount defaults to everything not yet refunded.
	Amount *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Reason string   `json:"reason,omitempty" validate:"max=500"`
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// ApplyPayment marks the bill paid.
func (b *Bill) ApplyPayment(p Payment, at time.Time) error {
	if b.PaymentStatus != StatusUnpaid {
		return fmt.Errorf("%w: bill is %s", ErrInvalidState, b.PaymentStatus)
	}
	amount := b.Amount
	if p.Amount != nil {
		amount = roundCents(*p.Amount)
	}
	if amount != b.Amount {
		return fmt.Errorf("%w: payment of %.2f does not match bill amount %.2f", ErrValidation, amount, b.Amount)
	}
	b.AmountPaid = amount
	b.PaymentStatus = StatusPaid
	b.PaymentMethod = &p.Method
	b.PaymentReference = p.Reference
	b.PaidAt = &at
	return nil
}

// Refundable is the amount that can still be refunded.
func (b *Bill) Refundable() float64 {
	return roundCents(b.AmountPaid - b.AmountRefunded)
}

// ApplyRefund refunds part or all of what was paid.
func (b *Bill) ApplyRefund(r Refund) error {
	if b.PaymentStatus != StatusPaid && b.PaymentStatus != StatusPartiallyRefunded {
		return fmt.Errorf("%w: bill is %s", ErrInvalidState, b.PaymentStatus)
	}
	refundable := b.Refundable()
	amount := refundable
	if r.Amount != nil {
		amount = roundCents(*r.Amount)
	}
	if amount <= 0 || amount > refundable {
		return fmt.Errorf("%w: refund must be between 0.01 and %.2f", ErrValidation, refundable)
	}
	b.AmountRefunded = roundCents(b.AmountRefunded + amount)
	if b.AmountRefunded >= b.AmountPaid {
		b.PaymentStatus = StatusRefunded
	} else {
		b.PaymentStatus = StatusPartiallyRefunded
	}
	return nil
}
