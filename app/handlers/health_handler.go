package handlers

import (
	"context"
	"time"

	"github.com/amirphl/counter-app/app/dto"
	"github.com/amirphl/counter-app/app/services"
	"github.com/amirphl/counter-app/utils"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const healthCheckTimeout = 3 * time.Second

// HealthHandler reports the state of the database and the cache
type HealthHandler struct {
	baseHandler
	db      *gorm.DB
	cache   services.CounterCache // nil when caching is disabled
	version string
	logger  *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, cache services.CounterCache, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		cache:   cache,
		version: version,
		logger:  logger,
	}
}

// Check answers 200 while the database is reachable. A cache outage only degrades the status.
// GET /api/v1/health
func (h *HealthHandler) Check(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	res := dto.HealthResponse{
		Status:    "ok",
		Timestamp: utils.UTCNowUnix(),
		Version:   h.version,
		Service:   "counter-app",
		Database:  "up",
		Cache:     "disabled",
	}

	if err := h.pingDatabase(ctx); err != nil {
		h.logger.Error("database health check failed", zap.Error(err))
		res.Status = "unavailable"
		res.Database = "down"
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.APIResponse{
			Success: false,
			Message: "Service is unavailable",
			Data:    res,
			Error:   dto.ErrorDetail{Code: "DATABASE_UNAVAILABLE"},
		})
	}

	if h.cache != nil {
		res.Cache = "up"
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("cache health check failed", zap.Error(err))
			res.Status = "degraded"
			res.Cache = "down"
		}
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Service is healthy", res)
}

func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
