package admin

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type deptRepoPG struct {
	pool *pgxpool.Pool
}

func NewDepartmentRepo(pool *pgxpool.Pool) DepartmentRepository {
	return &deptRepoPG{pool: pool}
}

const deptCols = `id, name, description, active, created_at, updated_at`

func mapErr(err error) error {
	switch {
	case db.IsNoRows(err):
		return ErrNotFound
	case db.IsUniqueViolation(err, ""):
		return ErrDuplicateName
	}
	return err
}

func scanDept(row pgx.Row) (*Department, error) {
	var d Department
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (r *deptRepoPG) Create(ctx context.Context, d *Department) error {
	d.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO department (id, name, description, active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Description, d.Active,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *deptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	return scanDept(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+deptCols+` FROM department WHERE id = $1`, id))
}

func (r *deptRepoPG) Update(ctx context.Context, d *Department) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE department SET name = $2, description = $3, active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Description, d.Active,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// Delete removes a department. Doctors and receptionists in it keep their
// records with the department cleared.
func (r *deptRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM department WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *deptRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Department, int, error) {
	where := ``
	if activeOnly {
		where = ` WHERE active`
	}
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM department`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+deptCols+` FROM department`+where+` ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var depts []*Department
	for rows.Next() {
		d, err := scanDept(rows)
		if err != nil {
			return nil, 0, err
		}
		depts = append(depts, d)
	}
	return depts, total, rows.Err()
}
