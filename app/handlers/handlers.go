// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/amirphl/counter-app/app/dto"
	businessflow "github.com/amirphl/counter-app/business_flow"
	"github.com/amirphl/counter-app/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	fiberutils "github.com/gofiber/utils/v2"
)

// baseHandler carries the response helpers shared by the JSON handlers
type baseHandler struct{}

func (baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validationDetails flattens validator errors into readable messages
func (baseHandler) validationDetails(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		details = append(details, getValidationErrorMessage(e))
	}
	return details
}

// createRequestContext derives the context handed to the business flows.
// Callers must defer the returned cancel.
func (baseHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), utils.RequestTimeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, fiberutils.CopyString(requestid.FromContext(c)))
	ctx = context.WithValue(ctx, utils.UserAgentKey, fiberutils.CopyString(c.Get(fiber.HeaderUserAgent)))
	ctx = context.WithValue(ctx, utils.IPAddressKey, fiberutils.CopyString(c.IP()))
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, utils.RequestTimeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx, cancel
}

// counterNameParam returns the unescaped :name route parameter
func counterNameParam(c fiber.Ctx) (string, error) {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return "", businessflow.NewBusinessError("INVALID_COUNTER_NAME", "counter name is not a valid path segment", businessflow.ErrInvalidCounterName)
	}
	return name, nil
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
