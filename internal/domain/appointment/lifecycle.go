package appointment

import (
	"fmt"
	"strings"

	"github.com/hms/hms/internal/platform/auth"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusCheckedIn Status = "checked-in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus accepts the stored statuses plus "scheduled", an alias of
// booked.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusBooked, StatusCheckedIn, StatusCompleted, StatusCancelled:
		return st, nil
	case "scheduled":
		return StatusBooked, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// HoldsSlot reports whether an appointment in this status occupies its
// doctor's slot.
func (s Status) HoldsSlot() bool {
	return s != StatusCancelled
}

var transitions = map[Status][]Status{
	StatusBooked:    {StatusCheckedIn, StatusCancelled, StatusBooked},
	StatusCheckedIn: {StatusCompleted, StatusCancelled, StatusBooked},
	StatusCancelled: {StatusBooked},
	StatusCompleted: {StatusBooked},
}

// Terminal reports whether only a reschedule can move the appointment on.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether an appointment may move from current to
// target. The booked target is a reschedule.
func CanTransition(current, target Status) bool {
	for _, s := range transitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

// Action is a lifecycle operation a caller asks for.
type Action string

const (
	ActionBook       Action = "book"
	ActionCheckIn    Action = "check-in"
	ActionComplete   Action = "complete"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
)

// Target is the status the action moves an appointment to.
func (a Action) Target() Status {
	switch a {
	case ActionCheckIn:
		return StatusCheckedIn
	case ActionComplete:
		return StatusCompleted
	case ActionCancel:
		return StatusCancelled
	}
	return StatusBooked
}

var actionRoles = map[Action][]auth.Role{
	ActionBook:       {auth.RoleAdmin, auth.RolePatient, auth.RoleReceptionist},
	ActionCheckIn:    {auth.RoleAdmin, auth.RoleDoctor, auth.RoleReceptionist},
	ActionComplete:   {auth.RoleAdmin, auth.RoleDoctor, auth.RoleReceptionist},
	ActionCancel:     {auth.RoleAdmin, auth.RoleDoctor, auth.RolePatient, auth.RoleReceptionist},
	ActionReschedule: {auth.RoleAdmin, auth.RoleDoctor, auth.RolePatient, auth.RoleReceptionist},
}

// Authorize checks that role may perform action on an appointment in status
// current. Booking has no current status and ignores it. Role failures wrap
// ErrForbidden and lifecycle failures wrap ErrInvalidTransition.
func Authorize(action Action, role auth.Role, current Status) error {
	allowed, ok := actionRoles[action]
	if !ok {
		return fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
	if !auth.HasRole(auth.Principal{Role: role}, allowed...) {
		return fmt.Errorf("%w: role %s cannot %s appointments", ErrForbidden, role, action)
	}
	if action == ActionBook {
		return nil
	}

	target := action.Target()
	if !CanTransition(current, target) {
		return fmt.Errorf("%w: cannot move appointment from %s to %s", ErrInvalidTransition, current, target)
	}
	if action == ActionReschedule {
		switch {
		case current.Terminal() && role != auth.RoleAdmin && role != auth.RoleDoctor:
			return fmt.Errorf("%w: only admins and doctors can reschedule a %s appointment", ErrForbidden, current)
		case role == auth.RolePatient && current != StatusBooked:
			return fmt.Errorf("%w: patients can only reschedule booked appointments, this one is %s", ErrInvalidTransition, current)
		}
	}
	return nil
}
