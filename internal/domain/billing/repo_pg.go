package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type billRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &billRepoPG{pool: pool}
}

const billCols = `id, appointment_id, patient_id, doctor_id, amount, amount_paid, amount_refunded,
	payment_status, payment_method, payment_reference, paid_at, created_at, updated_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.AppointmentID, &b.PatientID, &b.DoctorID, &b.Amount, &b.AmountPaid,
		&b.AmountRefunded, &b.PaymentStatus, &b.PaymentMethod, &b.PaymentReference, &b.PaidAt,
		&b.CreatedAt, &b.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *billRepoPG) CreateIfAbsent(ctx context.Context, b *Bill) (bool, error) {
	q := db.Conn(ctx, r.pool)
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = StatusUnpaid
	}
	tag, err := q.Exec(ctx, `
		INSERT INTO bill (id, appointment_id, patient_id, doctor_id, amount, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT bill_appointment_key DO NOTHING`,
		b.ID, b.AppointmentID, b.PatientID, b.DoctorID, b.Amount, b.PaymentStatus)
	if err != nil {
		return false, fmt.Errorf("insert bill: %w", err)
	}

	existing, err := scanBill(q.QueryRow(ctx, `SELECT `+billCols+` FROM bill WHERE appointment_id = $1`, b.AppointmentID))
	if err != nil {
		return false, err
	}
	*b = *existing
	return tag.RowsAffected() == 1, nil
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return scanBill(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+billCols+` FROM bill WHERE id = $1`, id))
}

func (r *billRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return scanBill(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+billCols+` FROM bill WHERE id = $1 FOR UPDATE`, id))
}

func (r *billRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Bill, error) {
	return scanBill(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+billCols+` FROM bill WHERE appointment_id = $1`, appointmentID))
}

func (r *billRepoPG) UpdatePayment(ctx context.Context, b *Bill) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE bill SET amount_paid = $2, amount_refunded = $3, payment_status = $4,
			payment_method = $5, payment_reference = $6, paid_at = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.AmountPaid, b.AmountRefunded, b.PaymentStatus, b.PaymentMethod, b.PaymentReference, b.PaidAt,
	).Scan(&b.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *billRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Bill, int, error) {
	var conds []string
	var args []interface{}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		conds = append(conds, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM bill`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT `+billCols+` FROM bill`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var bills []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, b)
	}
	return bills, total, rows.Err()
}
