package handlers

import (
	"context"
	"fmt"

	"github.com/amirphl/counter-app/app/dto"
	businessflow "github.com/amirphl/counter-app/business_flow"
	"github.com/amirphl/counter-app/config"
	"github.com/amirphl/counter-app/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// CounterHandlerInterface defines the contract for the counter API handlers
type CounterHandlerInterface interface {
	List(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	GetValue(c fiber.Ctx) error
	Increment(c fiber.Ctx) error
	Decrement(c fiber.Ctx) error
	Reset(c fiber.Ctx) error
}

// CounterHandler handles the counter JSON API
type CounterHandler struct {
	baseHandler
	flow        businessflow.CounterFlow
	validator   *validator.Validate
	logger      *zap.Logger
	defaultName string
}

// NewCounterHandler creates a new counter handler
func NewCounterHandler(flow businessflow.CounterFlow, cfg config.CounterConfig, logger *zap.Logger) *CounterHandler {
	if cfg.DefaultName == "" {
		cfg.DefaultName = utils.DefaultCounterName
	}
	return &CounterHandler{
		flow:        flow,
		validator:   validator.New(),
		logger:      logger,
		defaultName: cfg.DefaultName,
	}
}

// List returns one page of counters ordered by name
// GET /api/v1/counters?page=1&page_size=20&prefix=
func (h *CounterHandler) List(c fiber.Ctx) error {
	req := dto.ListCountersRequest{
		Page:     1,
		PageSize: utils.DefaultPageSize,
	}
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", h.validationDetails(err))
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/counters")
	defer cancel()

	res, err := h.flow.ListCounters(ctx, &req)
	if err != nil {
		if be, ok := businessflow.AsBusinessError(err); ok {
			switch be.Code {
			case "INVALID_REQUEST", "INVALID_PAGE", "INVALID_PAGE_SIZE":
				return h.ErrorResponse(c, fiber.StatusBadRequest, be.Message, be.Code, nil)
			}
		}
		h.logFailure(ctx, "list counters", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list counters", "COUNTER_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Counters retrieved successfully", res)
}

// Get returns the full counter record, creating the counter if needed
// GET /api/v1/counters/:name
func (h *CounterHandler) Get(c fiber.Ctx) error {
	name, err := counterNameParam(c)
	if err != nil {
		return h.businessErrorResponse(c, err)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/counters/:name")
	defer cancel()

	res, err := h.flow.GetOrCreateCounter(ctx, name)
	if err != nil {
		if _, ok := businessflow.AsBusinessError(err); ok {
			return h.businessErrorResponse(c, err)
		}
		h.logFailure(ctx, "get counter", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve counter", "COUNTER_RETRIEVAL_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Counter retrieved successfully", res)
}

// GetValue returns only the counter value
// GET /api/v1/counters/:name/value
func (h *CounterHandler) GetValue(c fiber.Ctx) error {
	return h.valueOperation(c, "/api/v1/counters/:name/value", h.flow.GetCounterValue,
		"Counter value retrieved successfully", "COUNTER_RETRIEVAL_FAILED", "get counter value")
}

// Increment adds one to the counter
// POST /api/v1/counters/:name/increment
func (h *CounterHandler) Increment(c fiber.Ctx) error {
	return h.valueOperation(c, "/api/v1/counters/:name/increment", h.flow.IncrementCounter,
		"Counter incremented successfully", "COUNTER_INCREMENT_FAILED", "increment counter")
}

// Decrement subtracts one from the counter
// POST /api/v1/counters/:name/decrement
func (h *CounterHandler) Decrement(c fiber.Ctx) error {
	return h.valueOperation(c, "/api/v1/counters/:name/decrement", h.flow.DecrementCounter,
		"Counter decremented successfully", "COUNTER_DECREMENT_FAILED", "decrement counter")
}

// Reset sets the counter back to zero
// POST /api/v1/counters/:name/reset
func (h *CounterHandler) Reset(c fiber.Ctx) error {
	return h.valueOperation(c, "/api/v1/counters/:name/reset", h.flow.ResetCounter,
		"Counter reset successfully", "COUNTER_RESET_FAILED", "reset counter")
}

func (h *CounterHandler) valueOperation(
	c fiber.Ctx,
	endpoint string,
	op func(context.Context, string) (int64, error),
	successMessage, failureCode, action string,
) error {
	name, err := counterNameParam(c)
	if err != nil {
		return h.businessErrorResponse(c, err)
	}

	ctx, cancel := h.createRequestContext(c, endpoint)
	defer cancel()

	value, err := op(ctx, name)
	if err != nil {
		if _, ok := businessflow.AsBusinessError(err); ok {
			return h.businessErrorResponse(c, err)
		}
		h.logFailure(ctx, action, err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to %s", action), failureCode, nil)
	}

	normalized, _ := businessflow.NormalizeCounterName(name, h.defaultName)
	return h.SuccessResponse(c, fiber.StatusOK, successMessage, dto.CounterValueResponse{
		Name:  normalized,
		Value: value,
	})
}

func (h *CounterHandler) businessErrorResponse(c fiber.Ctx, err error) error {
	be, _ := businessflow.AsBusinessError(err)
	if be != nil && be.Code == "INVALID_COUNTER_NAME" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid counter name", be.Code, be.Message)
	}
	return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request", "INVALID_REQUEST", err.Error())
}

func (h *CounterHandler) logFailure(ctx context.Context, action string, err error) {
	h.logger.Error("counter request failed",
		zap.String("action", action),
		zap.String("endpoint", fmt.Sprint(ctx.Value(utils.EndpointKey))),
		zap.String("request_id", utils.RequestIDFromContext(ctx)),
		zap.Error(err),
	)
}
