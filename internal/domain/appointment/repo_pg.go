package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

const activeSlotIndex = "appointment_active_slot_idx"

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, patient_id, doctor_id, appointment_date, appointment_time, reason, status,
	cancellation_reason, created_by, checked_in_at, completed_at, cancelled_at, rescheduled_at,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &date, &a.Time, &a.Reason, &a.Status,
		&a.CancellationReason, &a.CreatedBy, &a.CheckedInAt, &a.CompletedAt, &a.CancelledAt,
		&a.RescheduledAt, &a.CreatedAt, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Date = date.Format(time.DateOnly)
	return &a, nil
}

func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, activeSlotIndex):
		return ErrSlotConflict
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: unknown patient or doctor", ErrValidation)
	case db.IsCheckViolation(err):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	date, err := time.Parse(time.DateOnly, a.Date)
	if err != nil {
		return fmt.Errorf("%w: invalid date", ErrValidation)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, appointment_date, appointment_time, reason,
			status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, date, a.Time, a.Reason, a.Status, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapWriteErr(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	date, err := time.Parse(time.DateOnly, a.Date)
	if err != nil {
		return fmt.Errorf("%w: invalid date", ErrValidation)
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment SET doctor_id = $2, appointment_date = $3, appointment_time = $4, reason = $5,
			status = $6, cancellation_reason = $7, checked_in_at = $8, completed_at = $9,
			cancelled_at = $10, rescheduled_at = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.DoctorID, date, a.Time, a.Reason, a.Status, a.CancellationReason, a.CheckedInAt,
		a.CompletedAt, a.CancelledAt, a.RescheduledAt,
	).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return mapWriteErr(err)
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrHasRecords
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	for _, d := range []struct {
		cond, val string
	}{
		{"appointment_date = $%d", f.Date},
		{"appointment_date >= $%d", f.From},
		{"appointment_date <= $%d", f.To},
	} {
		if d.val == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, d.val)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: dates must be in YYYY-MM-DD format", ErrValidation)
		}
		add(d.cond, t)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT `+apptCols+` FROM appointment`+where+
		fmt.Sprintf(` ORDER BY appointment_date DESC, appointment_time DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *appointmentRepoPG) HasConflict(ctx context.Context, doctorID uuid.UUID, date, hhmm string, excludeID *uuid.UUID) (bool, error) {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return false, fmt.Errorf("%w: invalid date", ErrValidation)
	}
	var exclude uuid.UUID
	if excludeID != nil {
		exclude = *excludeID
	}
	var exists bool
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND appointment_date = $2 AND appointment_time = $3
			  AND status <> 'cancelled' AND id <> $4
		)`, doctorID, d, hhmm, exclude).Scan(&exists)
	return exists, err
}

func (r *appointmentRepoPG) TakenSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date", ErrValidation)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT appointment_time FROM appointment
		WHERE doctor_id = $1 AND appointment_date = $2 AND status <> 'cancelled'
		ORDER BY appointment_time`, doctorID, d)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
