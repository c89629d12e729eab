package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	depts DepartmentRepository
}

func NewService(depts DepartmentRepository) *Service {
	return &Service{depts: depts}
}

func (s *Service) CreateDepartment(ctx context.Context, dept *Department) error {
	dept.Name = strings.TrimSpace(dept.Name)
	if dept.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	dept.Active = true
	return s.depts.Create(ctx, dept)
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.depts.GetByID(ctx, id)
}

func (s *Service) UpdateDepartment(ctx context.Context, dept *Department) error {
	dept.Name = strings.TrimSpace(dept.Name)
	if dept.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return s.depts.Update(ctx, dept)
}

func (s *Service) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	return s.depts.Delete(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context, activeOnly bool, limit, offset int) ([]*Department, int, error) {
	return s.depts.List(ctx, activeOnly, limit, offset)
}
