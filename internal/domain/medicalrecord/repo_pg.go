package medicalrecord

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type recordRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &recordRepoPG{pool: pool}
}

const recordCols = `id, appointment_id, patient_id, doctor_id, diagnosis, symptoms, treatment, notes,
	follow_up_date, created_at, updated_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	err := row.Scan(&m.ID, &m.AppointmentID, &m.PatientID, &m.DoctorID, &m.Diagnosis, &m.Symptoms,
		&m.Treatment, &m.Notes, &m.FollowUpDate, &m.CreatedAt, &m.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *recordRepoPG) CreateIfAbsent(ctx context.Context, m *MedicalRecord) (bool, error) {
	q := db.Conn(ctx, r.pool)
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	tag, err := q.Exec(ctx, `
		INSERT INTO medical_record (id, appointment_id, patient_id, doctor_id, diagnosis, symptoms,
			treatment, notes, follow_up_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT medical_record_appointment_key DO NOTHING`,
		m.ID, m.AppointmentID, m.PatientID, m.DoctorID, m.Diagnosis, m.Symptoms, m.Treatment, m.Notes, m.FollowUpDate)
	if err != nil {
		return false, fmt.Errorf("insert medical record: %w", err)
	}
	stored, err := scanRecord(q.QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_record WHERE appointment_id = $1`, m.AppointmentID))
	if err != nil {
		return false, err
	}
	*m = *stored
	return tag.RowsAffected() == 1, nil
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+recordCols+` FROM medical_record WHERE id = $1`, id))
}

func (r *recordRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_record WHERE id = $1 FOR UPDATE`, id))
}

func (r *recordRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_record WHERE appointment_id = $1`, appointmentID))
}

func (r *recordRepoPG) Update(ctx context.Context, m *MedicalRecord) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE medical_record SET diagnosis = $2, symptoms = $3, treatment = $4, notes = $5,
			follow_up_date = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Diagnosis, m.Symptoms, m.Treatment, m.Notes, m.FollowUpDate,
	).Scan(&m.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *recordRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*MedicalRecord, int, error) {
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
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM medical_record`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT `+recordCols+` FROM medical_record`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*MedicalRecord
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}
