package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/queue"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util"
)

// CountersHandler manages counter administration and the call-next operation.
type CountersHandler struct {
	departments *service.DepartmentService
	tokens      *service.TokenService
}

// NewCountersHandler constructs handler.
func NewCountersHandler(departments *service.DepartmentService, tokens *service.TokenService) *CountersHandler {
	return &CountersHandler{departments: departments, tokens: tokens}
}

// CreateCounter POST /counters.
func (h *CountersHandler) CreateCounter(c *fiber.Ctx) error {
	var req dto.CreateCounterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.DepartmentID == "" {
		return apperrors.NewValidationError("department_id required", nil)
	}

	counter, err := h.departments.CreateCounter(c.UserContext(), service.CounterCreateInput{
		DepartmentID: req.DepartmentID,
		Name:         req.Name,
		MinPriority:  req.MinPriority,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": counterResponse(counter)})
}

// ListCounters GET /departments/:id/counters.
func (h *CountersHandler) ListCounters(c *fiber.Ctx) error {
	counters, err := h.departments.ListCounters(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.CounterResponse, 0, len(counters))
	for i := range counters {
		items = append(items, counterResponse(&counters[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CallNext POST /counters/:id/call-next. An empty queue is an expected outcome and
// answers with a null token, not an error.
func (h *CountersHandler) CallNext(c *fiber.Ctx) error {
	token, err := h.tokens.CallNext(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, queue.ErrNoTokensAvailable) {
			return c.JSON(fiber.Map{"data": nil})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": tokenResponse(token)})
}

func counterResponse(counter *domain.Counter) dto.CounterResponse {
	return dto.CounterResponse{
		ID:             counter.ID,
		DepartmentID:   counter.DepartmentID,
		Name:           counter.Name,
		Status:         counter.Status,
		CurrentTokenID: counter.CurrentTokenID,
		MinPriority:    counter.MinPriority,
	}
}
