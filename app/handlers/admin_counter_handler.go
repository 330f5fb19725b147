package handlers

import (
	businessflow "github.com/amirphl/counter-app/business_flow"
	"github.com/amirphl/counter-app/utils"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminCounterHandlerInterface defines the contract for admin counter handlers
type AdminCounterHandlerInterface interface {
	Export(c fiber.Ctx) error
}

// AdminCounterHandler serves admin-only counter endpoints
type AdminCounterHandler struct {
	baseHandler
	flow   businessflow.CounterFlow
	logger *zap.Logger
}

// NewAdminCounterHandler creates a new admin counter handler
func NewAdminCounterHandler(flow businessflow.CounterFlow, logger *zap.Logger) *AdminCounterHandler {
	return &AdminCounterHandler{
		flow:   flow,
		logger: logger,
	}
}

// Export downloads every counter as an XLSX workbook
// GET /api/v1/admin/counters/export
func (h *AdminCounterHandler) Export(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/counters/export")
	defer cancel()

	filename, data, err := h.flow.ExportCounters(ctx)
	if err != nil {
		h.logger.Error("counter export failed",
			zap.String("request_id", utils.RequestIDFromContext(ctx)),
			zap.Error(err),
		)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export counters", "COUNTER_EXPORT_FAILED", nil)
	}

	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, xlsxContentType)
	return c.Status(fiber.StatusOK).Send(data)
}
