package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util"
)

// DepartmentsHandler manages department administration and queue views.
type DepartmentsHandler struct {
	departments *service.DepartmentService
	tokens      *service.TokenService
}

// NewDepartmentsHandler constructs handler.
func NewDepartmentsHandler(departments *service.DepartmentService, tokens *service.TokenService) *DepartmentsHandler {
	return &DepartmentsHandler{departments: departments, tokens: tokens}
}

// CreateDepartment POST /departments.
func (h *DepartmentsHandler) CreateDepartment(c *fiber.Ctx) error {
	var req dto.CreateDepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	dept, err := h.departments.CreateDepartment(c.UserContext(), service.DepartmentCreateInput{
		Code:                  req.Code,
		Name:                  req.Name,
		QueueType:             req.QueueType,
		MaxTokensPerDay:       req.MaxTokensPerDay,
		AvgServiceTimeMinutes: req.AvgServiceTimeMinutes,
		OperatingHours:        req.DomainOperatingHours(),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": h.departmentResponse(dept)})
}

// ListDepartments GET /departments.
func (h *DepartmentsHandler) ListDepartments(c *fiber.Ctx) error {
	depts, err := h.departments.ListDepartments(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		items = append(items, h.departmentResponse(&depts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetDepartment GET /departments/:id.
func (h *DepartmentsHandler) GetDepartment(c *fiber.Ctx) error {
	dept, err := h.departments.GetDepartment(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.departmentResponse(dept)})
}

// GetQueue GET /departments/:id/queue.
func (h *DepartmentsHandler) GetQueue(c *fiber.Ctx) error {
	waiting := h.tokens.ListQueue(c.Params("id"))
	items := make([]dto.QueueEntry, 0, len(waiting))
	for _, token := range waiting {
		items = append(items, dto.QueueEntry{
			TokenNumber:   token.TokenNumber,
			DisplayNumber: token.DisplayNumber,
			Priority:      token.Priority,
			QueuePosition: token.Position(),
			IssuedAt:      token.IssuedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ReorderQueue PUT /departments/:id/queue/order.
func (h *DepartmentsHandler) ReorderQueue(c *fiber.Ctx) error {
	var req dto.ReorderQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.tokens.ReorderQueue(c.UserContext(), c.Params("id"), req.Order); err != nil {
		return err
	}
	return h.GetQueue(c)
}

// EstimateWait GET /departments/:id/estimate.
func (h *DepartmentsHandler) EstimateWait(c *fiber.Ctx) error {
	priority := domain.MinPriority
	if raw := c.Query("priority"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return apperrors.NewValidationError("priority must be an integer", nil)
		}
		priority = parsed
	}

	minutes, err := h.tokens.EstimateWait(c.UserContext(), c.Params("id"), priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.EstimateResponse{
		DepartmentID:         c.Params("id"),
		Priority:             priority,
		EstimatedWaitMinutes: minutes,
	}})
}

func (h *DepartmentsHandler) departmentResponse(dept *domain.Department) dto.DepartmentResponse {
	return dto.DepartmentResponse{
		ID:                    dept.ID,
		Code:                  dept.Code,
		Name:                  dept.Name,
		QueueType:             dept.QueueType,
		MaxTokensPerDay:       dept.MaxTokensPerDay,
		AvgServiceTimeMinutes: dept.AvgServiceTimeMinutes,
		IsActive:              dept.IsActive,
		WaitingCount:          h.departments.WaitingCount(dept.ID),
		CreatedAt:             dept.CreatedAt,
	}
}
