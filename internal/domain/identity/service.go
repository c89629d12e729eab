package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	patients      PatientRepository
	doctors       DoctorRepository
	receptionists ReceptionistRepository
}

func NewService(patients PatientRepository, doctors DoctorRepository, receptionists ReceptionistRepository) *Service {
	return &Service{patients: patients, doctors: doctors, receptionists: receptionists}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func normalizeEmail(email *string) {
	if email == nil {
		return
	}
	*email = strings.ToLower(strings.TrimSpace(*email))
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name is required")
	}
	normalizeEmail(p.Email)
	p.Active = true
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name is required")
	}
	normalizeEmail(p.Email)
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, f, limit, offset)
}

// -- Doctor --

func (s *Service) prepareDoctor(d *Doctor) error {
	if strings.TrimSpace(d.Name) == "" {
		return invalid("name is required")
	}
	if d.WorkStart == "" {
		d.WorkStart = DefaultWorkStart
	}
	if d.WorkEnd == "" {
		d.WorkEnd = DefaultWorkEnd
	}
	slots, err := d.Slots()
	if err != nil {
		return invalid("%v", err)
	}
	if len(slots) == 0 {
		return invalid("work_end must be at least one slot after work_start")
	}
	if d.ConsultationFee != nil && *d.ConsultationFee < 0 {
		return invalid("consultation_fee must not be negative")
	}
	for i, day := range d.AvailableDays {
		d.AvailableDays[i] = strings.ToLower(day)
	}
	normalizeEmail(d.Email)
	return nil
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := s.prepareDoctor(d); err != nil {
		return err
	}
	d.Active = true
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := s.prepareDoctor(d); err != nil {
		return err
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, f ListFilter, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, f, limit, offset)
}

// -- Receptionist --

func (s *Service) CreateReceptionist(ctx context.Context, r *Receptionist) error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid("name is required")
	}
	normalizeEmail(r.Email)
	r.Active = true
	return s.receptionists.Create(ctx, r)
}

func (s *Service) GetReceptionist(ctx context.Context, id uuid.UUID) (*Receptionist, error) {
	return s.receptionists.GetByID(ctx, id)
}

func (s *Service) UpdateReceptionist(ctx context.Context, r *Receptionist) error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid("name is required")
	}
	normalizeEmail(r.Email)
	return s.receptionists.Update(ctx, r)
}

func (s *Service) DeleteReceptionist(ctx context.Context, id uuid.UUID) error {
	return s.receptionists.Delete(ctx, id)
}

func (s *Service) ListReceptionists(ctx context.Context, f ListFilter, limit, offset int) ([]*Receptionist, int, error) {
	return s.receptionists.List(ctx, f, limit, offset)
}
