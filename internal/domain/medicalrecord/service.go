package medicalrecord

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/db"
)

// Skeleton identifies the appointment a placeholder record is created for.
type Skeleton struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
}

type Service struct {
	repo Repository
	tx   db.Transactor
}

func NewService(repo Repository, tx db.Transactor) *Service {
	return &Service{repo: repo, tx: tx}
}

// EnsureSkeleton creates the placeholder record for a completed appointment
// unless one exists. It returns the record and whether this call created it.
func (s *Service) EnsureSkeleton(ctx context.Context, sk Skeleton) (*MedicalRecord, bool, error) {
	if sk.AppointmentID == uuid.Nil || sk.PatientID == uuid.Nil || sk.DoctorID == uuid.Nil {
		return nil, false, fmt.Errorf("%w: appointment, patient and doctor are required", ErrValidation)
	}
	m := &MedicalRecord{
		AppointmentID: sk.AppointmentID,
		PatientID:     sk.PatientID,
		DoctorID:      sk.DoctorID,
		Diagnosis:     SkeletonDiagnosis,
	}
	created, err := s.repo.CreateIfAbsent(ctx, m)
	if err != nil {
		return nil, false, err
	}
	return m, created, nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*MedicalRecord, error) {
	return s.repo.GetByAppointment(ctx, appointmentID)
}

func (s *Service) ListRecords(ctx context.Context, f Filter, limit, offset int) ([]*MedicalRecord, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// UpdateRecord applies a doctor's edit under the record's row lock. When
// doctorID is set the record must belong to that doctor.
func (s *Service) UpdateRecord(ctx context.Context, id uuid.UUID, doctorID *uuid.UUID, u Update) (*MedicalRecord, error) {
	var out *MedicalRecord
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		m, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doctorID != nil && m.DoctorID != *doctorID {
			return ErrForbidden
		}
		if err := u.Apply(m); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if strings.TrimSpace(m.Diagnosis) == "" {
			return fmt.Errorf("%w: diagnosis must not be empty", ErrValidation)
		}
		if err := s.repo.Update(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}
