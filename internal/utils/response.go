package utils

import (
	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

const defaultSuccessMessage = "success"

// APIResponse is the envelope every endpoint answers with. Data is omitted on errors.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
}

// SendSuccess answers 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus answers with data and a success status such as 201.
// A zero status falls back to 200.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	if message == "" {
		message = defaultSuccessMessage
	}

	return c.Status(status).JSON(APIResponse{Success: true, Data: data, Message: message})
}

// SendError answers with a failure envelope. An empty message becomes the
// status text, e.g. "Conflict" for 409.
func SendError(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		message = fiberutils.StatusMessage(status)
	}
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(APIResponse{Success: false, Message: message})
}
