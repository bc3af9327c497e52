// Package middleware provides fiber middleware for the admin API
package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
)

// statusFor maps error codes to HTTP status codes
func statusFor(code errdefs.Code) int {
	switch code {
	case errdefs.CodeValidation:
		return fiber.StatusBadRequest
	case errdefs.CodeNotFound:
		return fiber.StatusNotFound
	case errdefs.CodeConflict:
		return fiber.StatusConflict
	case errdefs.CodeTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler converts errors returned by handlers into the error response
// envelope
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *errdefs.Error
		if errors.As(err, &appErr) {
			status := statusFor(appErr.Code)
			if status >= fiber.StatusInternalServerError {
				logger.Error("Request failed",
					"path", c.Path(), "code", appErr.Code, "error", err)
			}
			return c.Status(status).JSON(models.ErrorResponse{
				Error: models.ErrorDetail{
					Code:    string(appErr.Code),
					Message: appErr.Message,
					Details: appErr.Details,
				},
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(models.ErrorResponse{
				Error: models.ErrorDetail{
					Code:    string(errdefs.CodeInternal),
					Message: fiberErr.Message,
				},
			})
		}

		logger.Error("Unclassified request error", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    string(errdefs.CodeInternal),
				Message: "internal server error",
			},
		})
	}
}
