package admin

import (
	"time"

	"github.com/google/uuid"
)

// Department maps to the department table.
type Department struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name" validate:"required,max=120"`
	Description *string   `db:"description" json:"description,omitempty" validate:"omitempty,max=1000"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
