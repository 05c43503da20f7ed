package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util"
)

// TokensHandler manages token lifecycle endpoints.
type TokensHandler struct {
	service *service.TokenService
}

// NewTokensHandler constructs handler.
func NewTokensHandler(tokenService *service.TokenService) *TokensHandler {
	return &TokensHandler{service: tokenService}
}

// IssueToken POST /tokens.
func (h *TokensHandler) IssueToken(c *fiber.Ctx) error {
	var req dto.IssueTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CustomerID == "" || req.DepartmentID == "" {
		return apperrors.NewValidationError("customer_id and department_id required", nil)
	}
	if req.Priority == 0 {
		req.Priority = domain.MinPriority
	}

	token, err := h.service.IssueToken(c.UserContext(), req.CustomerID, req.DepartmentID, req.Priority)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": tokenResponse(token)})
}

// GetToken GET /tokens/:number.
func (h *TokensHandler) GetToken(c *fiber.Ctx) error {
	token, err := h.service.GetToken(c.UserContext(), c.Params("number"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tokenResponse(token)})
}

// GetHistory GET /tokens/:number/history.
func (h *TokensHandler) GetHistory(c *fiber.Ctx) error {
	entries, err := h.service.GetHistory(c.UserContext(), c.Params("number"))
	if err != nil {
		return err
	}
	items := make([]dto.TokenHistoryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, historyResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// StartService POST /tokens/:number/start.
func (h *TokensHandler) StartService(c *fiber.Ctx) error {
	var req dto.StartServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	token, err := h.service.StartService(c.UserContext(), c.Params("number"), req.StaffID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tokenResponse(token)})
}

// CompleteService POST /tokens/:number/complete.
func (h *TokensHandler) CompleteService(c *fiber.Ctx) error {
	var req dto.CompleteServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return apperrors.NewValidationError("rating must be between 1 and 5", nil)
	}
	token, err := h.service.CompleteService(c.UserContext(), c.Params("number"), req.Notes, req.Rating)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tokenResponse(token)})
}

// CancelToken POST /tokens/:number/cancel.
func (h *TokensHandler) CancelToken(c *fiber.Ctx) error {
	var req dto.CancelTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	token, err := h.service.CancelToken(c.UserContext(), c.Params("number"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tokenResponse(token)})
}

// TransferToken POST /tokens/:number/transfer.
func (h *TokensHandler) TransferToken(c *fiber.Ctx) error {
	var req dto.TransferTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.NewDepartmentID) == "" {
		return apperrors.NewValidationError("new_department_id required", nil)
	}
	token, err := h.service.TransferToken(c.UserContext(), c.Params("number"), req.NewDepartmentID, req.NewCounterID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tokenResponse(token)})
}

func tokenResponse(t *domain.Token) dto.TokenResponse {
	return dto.TokenResponse{
		ID:                 t.ID,
		TokenNumber:        t.TokenNumber,
		DisplayNumber:      t.DisplayNumber,
		CustomerID:         t.CustomerID,
		DepartmentID:       t.DepartmentID,
		CounterID:          t.CounterID,
		Priority:           t.Priority,
		QueuePosition:      t.QueuePosition,
		Status:             t.Status,
		BusinessDate:       t.BusinessDate,
		IssuedAt:           t.IssuedAt,
		CalledAt:           t.CalledAt,
		ServiceStartedAt:   t.ServiceStartedAt,
		CompletedAt:        t.CompletedAt,
		WaitTimeMinutes:    t.WaitTimeMinutes,
		ServiceTimeMinutes: t.ServiceTimeMinutes,
		ServiceNotes:       t.ServiceNotes,
		Rating:             t.Rating,
		TransferHistory:    t.TransferHistory,
	}
}

func historyResponse(h *domain.TokenHistory) dto.TokenHistoryResponse {
	return dto.TokenHistoryResponse{
		ID:          h.ID,
		TokenNumber: h.TokenNumber,
		ChangeType:  h.ChangeType,
		OldValue:    h.OldValue,
		NewValue:    h.NewValue,
		CreatedAt:   h.CreatedAt,
	}
}
