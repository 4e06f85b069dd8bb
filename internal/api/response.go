package api

import (
	"github.com/gofiber/fiber/v2"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// RespondSuccess writes a 200 response carrying data.
func RespondSuccess(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(APIResponse{Success: true, Data: data})
}

func respondError(c *fiber.Ctx, status int, code, message, details string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
	})
}

// RespondBadRequest writes a 400 response.
func RespondBadRequest(c *fiber.Ctx, message, details string) error {
	return respondError(c, fiber.StatusBadRequest, "BAD_REQUEST", message, details)
}

// RespondNotFound writes a 404 response for the named resource.
func RespondNotFound(c *fiber.Ctx, resource, details string) error {
	return respondError(c, fiber.StatusNotFound, "NOT_FOUND", resource+" not found", details)
}

// RespondInternalError writes a 500 response.
func RespondInternalError(c *fiber.Ctx, message, details string) error {
	return respondError(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, details)
}

// RespondServiceUnavailable writes a 503 response asking the client to retry.
func RespondServiceUnavailable(c *fiber.Ctx, message, details string) error {
	c.Set(fiber.HeaderRetryAfter, "10")
	return respondError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, details)
}
