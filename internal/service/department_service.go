package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/queue"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util"
)

// DepartmentService manages department and counter administration.
type DepartmentService struct {
	departments repository.DepartmentRepository
	counters    repository.CounterRepository
	engine      *queue.Engine
	logger      *zap.Logger
}

// NewDepartmentService creates the service.
func NewDepartmentService(departments repository.DepartmentRepository, counters repository.CounterRepository, engine *queue.Engine, logger *zap.Logger) *DepartmentService {
	return &DepartmentService{
		departments: departments,
		counters:    counters,
		engine:      engine,
		logger:      logger,
	}
}

// DepartmentCreateInput carries admin input for a new department.
type DepartmentCreateInput struct {
	Code                  string
	Name                  string
	QueueType             domain.QueueType
	MaxTokensPerDay       int
	AvgServiceTimeMinutes float64
	OperatingHours        domain.OperatingHours
}

// CreateDepartment registers a department. The code becomes part of every token
// number issued for it, so it is normalized to upper case.
func (s *DepartmentService) CreateDepartment(ctx context.Context, input DepartmentCreateInput) (*domain.Department, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" || input.Name == "" {
		return nil, apperrors.NewValidationError("code and name required", nil)
	}
	if !input.QueueType.Valid() {
		return nil, apperrors.NewValidationError("unknown queue type", map[string]any{
			"queue_type": input.QueueType,
		})
	}

	dept := &domain.Department{
		ID:                    uuid.NewString(),
		Code:                  code,
		Name:                  input.Name,
		QueueType:             input.QueueType,
		MaxTokensPerDay:       input.MaxTokensPerDay,
		AvgServiceTimeMinutes: input.AvgServiceTimeMinutes,
		OperatingHours:        input.OperatingHours,
		IsActive:              true,
	}
	if s.departments != nil {
		if err := s.departments.Create(ctx, dept); err != nil {
			return nil, err
		}
	}
	s.logger.Info("department created",
		zap.String("department_id", dept.ID),
		zap.String("code", dept.Code),
		zap.String("queue_type", string(dept.QueueType)))
	return dept, nil
}

// GetDepartment fetches a department by ID.
func (s *DepartmentService) GetDepartment(ctx context.Context, id string) (*domain.Department, error) {
	return s.departments.GetByID(ctx, id)
}

// ListDepartments returns active departments.
func (s *DepartmentService) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	return s.departments.ListActive(ctx)
}

// WaitingCount reports the current waiting set size for a department.
func (s *DepartmentService) WaitingCount(departmentID string) int {
	return s.engine.WaitingCount(departmentID)
}

// CounterCreateInput carries admin input for a new counter.
type CounterCreateInput struct {
	DepartmentID string
	Name         string
	MinPriority  int
}

// CreateCounter registers a counter in a department.
func (s *DepartmentService) CreateCounter(ctx context.Context, input CounterCreateInput) (*domain.Counter, error) {
	if input.Name == "" {
		return nil, apperrors.NewValidationError("name required", nil)
	}
	if input.MinPriority < 0 || input.MinPriority > domain.MaxPriority {
		return nil, queue.ErrInvalidPriority
	}
	if _, err := s.departments.GetByID(ctx, input.DepartmentID); err != nil {
		return nil, err
	}

	counter := &domain.Counter{
		ID:           uuid.NewString(),
		DepartmentID: input.DepartmentID,
		Name:         input.Name,
		Status:       domain.CounterStatusActive,
		MinPriority:  input.MinPriority,
	}
	if s.counters != nil {
		if err := s.counters.Create(ctx, counter); err != nil {
			return nil, err
		}
	}
	return counter, nil
}

// ListCounters returns a department's counters.
func (s *DepartmentService) ListCounters(ctx context.Context, departmentID string) ([]domain.Counter, error) {
	return s.counters.ListByDepartment(ctx, departmentID)
}
