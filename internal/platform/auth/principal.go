package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is the caller's hospital role carried in the token.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RolePatient      Role = "patient"
	RoleReceptionist Role = "receptionist"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient, RoleReceptionist:
		return true
	}
	return false
}

// Principal is the authenticated caller. For doctors and patients UserID is
// the id of their directory record.
type Principal struct {
	UserID string
	Role   Role
	Name   string
}

// ProfileID parses UserID as the caller's patient or doctor id.
func (p Principal) ProfileID() (uuid.UUID, error) {
	id, err := uuid.Parse(p.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("subject %q is not a profile id", p.UserID)
	}
	return id, nil
}

// Owns reports whether the caller's subject names the profile id. Subjects
// compare as UUIDs, so case and braces do not matter.
func (p Principal) Owns(id uuid.UUID) bool {
	self, err := p.ProfileID()
	return err == nil && self == id
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller set by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}

func RoleFromContext(ctx context.Context) Role {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}
