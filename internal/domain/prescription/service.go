package prescription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo   Repository
	visits VisitLookup
}

func NewService(repo Repository, visits VisitLookup) *Service {
	return &Service{repo: repo, visits: visits}
}

// Create writes a prescription for an appointment. When doctorID is set the
// appointment must be that doctor's.
func (s *Service) Create(ctx context.Context, doctorID *uuid.UUID, req CreateRequest) (*Prescription, error) {
	apptID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: appointment_id must be a UUID", ErrValidation)
	}
	if len(req.Medications) == 0 {
		return nil, fmt.Errorf("%w: at least one medication is required", ErrValidation)
	}
	v, err := s.visits.LookupVisit(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if doctorID != nil && v.DoctorID != *doctorID {
		return nil, ErrForbidden
	}
	if v.Status != "checked-in" && v.Status != "completed" {
		return nil, ErrNotAttended
	}

	p := &Prescription{
		AppointmentID: apptID,
		PatientID:     v.PatientID,
		DoctorID:      v.DoctorID,
		Medications:   req.Medications,
		Instructions:  req.Instructions,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListPrescriptions(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}
