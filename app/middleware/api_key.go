// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"
	"errors"

	"github.com/amirphl/counter-app/app/dto"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/extractors"
	"github.com/gofiber/fiber/v3/middleware/keyauth"
	"github.com/gofiber/utils/v2"
	"go.uber.org/zap"
)

// APIKeyMiddleware guards admin endpoints with static API keys
type APIKeyMiddleware struct {
	header string
	keys   [][]byte
	logger *zap.Logger
}

// NewAPIKeyMiddleware creates a guard accepting any of keys in header
func NewAPIKeyMiddleware(header string, keys []string, logger *zap.Logger) *APIKeyMiddleware {
	m := &APIKeyMiddleware{
		header: header,
		logger: logger,
	}
	for _, k := range keys {
		m.keys = append(m.keys, []byte(k))
	}
	return m
}

// Require rejects requests without a valid key. With no keys configured every request is rejected.
func (m *APIKeyMiddleware) Require() fiber.Handler {
	return keyauth.New(keyauth.Config{
		Extractor:    extractors.FromHeader(m.header),
		Validator:    m.validate,
		ErrorHandler: m.reject,
		Realm:        "admin",
	})
}

func (m *APIKeyMiddleware) validate(_ fiber.Ctx, key string) (bool, error) {
	ok := 0
	for _, k := range m.keys {
		ok |= subtle.ConstantTimeCompare([]byte(key), k)
	}
	return ok == 1, nil
}

func (m *APIKeyMiddleware) reject(c fiber.Ctx, err error) error {
	if errors.Is(err, keyauth.ErrMissingOrMalformedAPIKey) {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "API key is required",
			Error: dto.ErrorDetail{
				Code: "MISSING_API_KEY",
			},
		})
	}

	m.logger.Warn("rejected admin request",
		zap.String("path", utils.CopyString(c.Path())),
		zap.String("ip", utils.CopyString(c.IP())),
	)
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: "Invalid API key",
		Error: dto.ErrorDetail{
			Code: "INVALID_API_KEY",
		},
	})
}
