package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/gofiber/utils/v2"
	"go.uber.org/zap"
)

// AccessLog writes one structured line per request. Paths for which skip
// returns true are not logged. Request values are copied because fiber
// reuses their buffers once the handler returns.
func AccessLog(logger *zap.Logger, skip func(path string) bool) fiber.Handler {
	return func(c fiber.Ctx) error {
		if skip != nil && skip(c.Path()) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		status := responseStatus(c, err)

		fields := []zap.Field{
			zap.String("request_id", utils.CopyString(requestid.FromContext(c))),
			zap.String("method", utils.CopyString(c.Method())),
			zap.String("path", utils.CopyString(c.Path())),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", utils.CopyString(c.IP())),
			zap.String("user_agent", utils.CopyString(c.Get(fiber.HeaderUserAgent))),
			zap.Int("bytes_out", len(c.Response().Body())),
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}

		return err
	}
}
