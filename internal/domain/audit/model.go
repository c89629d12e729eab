package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one persisted row of audit_log.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID *string   `json:"resource_id,omitempty"`
	StatusCode int       `json:"status_code"`
	RequestID  *string   `json:"request_id,omitempty"`
	IP         *string   `json:"ip,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Filter struct {
	UserID     string
	Resource   string
	ResourceID string
	From       *time.Time
	To         *time.Time
}
