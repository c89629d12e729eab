package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

// mapErr translates driver errors into package errors.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		return ErrNotFound
	case db.IsUniqueViolation(err, ""):
		return ErrDuplicateEmail
	case db.IsForeignKeyViolation(err):
		return ErrInUse
	}
	return err
}

// mapWriteErr is mapErr for inserts and updates, where a foreign key
// violation means the referenced department does not exist.
func mapWriteErr(err error) error {
	if db.IsForeignKeyViolation(err) {
		return ErrUnknownDepartment
	}
	return mapErr(err)
}

func deleteRow(ctx context.Context, q db.Querier, table string, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// whereBuilder accumulates AND conditions with positional arguments.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *whereBuilder) page(limit, offset int) string {
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, name, email, phone, date_of_birth, gender, blood_group, address,
	emergency_contact, active, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.DateOfBirth, &p.Gender, &p.BloodGroup,
		&p.Address, &p.EmergencyContact, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, name, email, phone, date_of_birth, gender, blood_group, address,
			emergency_contact, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Email, p.Phone, p.DateOfBirth, p.Gender, p.BloodGroup, p.Address,
		p.EmergencyContact, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapWriteErr(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET name=$2, email=$3, phone=$4, date_of_birth=$5, gender=$6, blood_group=$7,
			address=$8, emergency_contact=$9, active=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Email, p.Phone, p.DateOfBirth, p.Gender, p.BloodGroup,
		p.Address, p.EmergencyContact, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapWriteErr(err)
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteRow(ctx, db.Conn(ctx, r.pool), "patient", id)
}

func (r *patientRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	var w whereBuilder
	if f.Search != "" {
		w.add(`(name ILIKE $%[1]d OR email ILIKE $%[1]d OR phone ILIKE $%[1]d)`, "%"+f.Search+"%")
	}
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + patientCols + ` FROM patient` + w.sql() + ` ORDER BY name`
	query += w.page(limit, offset)
	rows, err := q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

const doctorSelect = `SELECT d.id, d.name, d.email, d.phone, d.specialization, d.department_id, dep.name,
	d.consultation_fee, d.work_start, d.work_end, d.available_days, d.active, d.created_at, d.updated_at
	FROM doctor d LEFT JOIN department dep ON dep.id = d.department_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Phone, &d.Specialization, &d.DepartmentID, &d.DepartmentName,
		&d.ConsultationFee, &d.WorkStart, &d.WorkEnd, &d.AvailableDays, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	if d.AvailableDays == nil {
		d.AvailableDays = []string{}
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctor (id, name, email, phone, specialization, department_id, consultation_fee,
			work_start, work_end, available_days, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Email, d.Phone, d.Specialization, d.DepartmentID, d.ConsultationFee,
		d.WorkStart, d.WorkEnd, d.AvailableDays, d.Active,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	return mapWriteErr(err)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx, doctorSelect+` WHERE d.id = $1`, id))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	if d.AvailableDays == nil {
		d.AvailableDays = []string{}
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE doctor SET name=$2, email=$3, phone=$4, specialization=$5, department_id=$6,
			consultation_fee=$7, work_start=$8, work_end=$9, available_days=$10, active=$11, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Email, d.Phone, d.Specialization, d.DepartmentID,
		d.ConsultationFee, d.WorkStart, d.WorkEnd, d.AvailableDays, d.Active,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	return mapWriteErr(err)
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteRow(ctx, db.Conn(ctx, r.pool), "doctor", id)
}

func (r *doctorRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Doctor, int, error) {
	var w whereBuilder
	if f.Search != "" {
		w.add(`(d.name ILIKE $%[1]d OR d.specialization ILIKE $%[1]d)`, "%"+f.Search+"%")
	}
	if f.DepartmentID != nil {
		w.add(`d.department_id = $%d`, *f.DepartmentID)
	}
	if f.Specialization != "" {
		w.add(`d.specialization ILIKE $%d`, f.Specialization)
	}
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM doctor d`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := doctorSelect + w.sql() + ` ORDER BY d.name`
	query += w.page(limit, offset)
	rows, err := q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// -- Receptionist Repository --

type receptionistRepoPG struct {
	pool *pgxpool.Pool
}

func NewReceptionistRepo(pool *pgxpool.Pool) ReceptionistRepository {
	return &receptionistRepoPG{pool: pool}
}

const receptionistCols = `id, name, email, phone, department_id, shift, active, created_at, updated_at`

func scanReceptionist(row pgx.Row) (*Receptionist, error) {
	var r Receptionist
	err := row.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &r.DepartmentID, &r.Shift, &r.Active,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (r *receptionistRepoPG) Create(ctx context.Context, rec *Receptionist) error {
	rec.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO receptionist (id, name, email, phone, department_id, shift, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		rec.ID, rec.Name, rec.Email, rec.Phone, rec.DepartmentID, rec.Shift, rec.Active,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	return mapWriteErr(err)
}

func (r *receptionistRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Receptionist, error) {
	return scanReceptionist(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+receptionistCols+` FROM receptionist WHERE id = $1`, id))
}

func (r *receptionistRepoPG) Update(ctx context.Context, rec *Receptionist) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE receptionist SET name=$2, email=$3, phone=$4, department_id=$5, shift=$6, active=$7,
			updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		rec.ID, rec.Name, rec.Email, rec.Phone, rec.DepartmentID, rec.Shift, rec.Active,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	return mapWriteErr(err)
}

func (r *receptionistRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteRow(ctx, db.Conn(ctx, r.pool), "receptionist", id)
}

func (r *receptionistRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Receptionist, int, error) {
	var w whereBuilder
	if f.Search != "" {
		w.add(`(name ILIKE $%[1]d OR email ILIKE $%[1]d)`, "%"+f.Search+"%")
	}
	if f.DepartmentID != nil {
		w.add(`department_id = $%d`, *f.DepartmentID)
	}
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM receptionist`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + receptionistCols + ` FROM receptionist` + w.sql() + ` ORDER BY name`
	query += w.page(limit, offset)
	rows, err := q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Receptionist
	for rows.Next() {
		rec, err := scanReceptionist(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
