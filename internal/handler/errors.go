package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/deviceauth/internal/domain"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Message     string   `json:"message"`
	InvalidArgs []string `json:"invalidArgs,omitempty"`
}

// respondError renders err with the status of its kind. Service errors only
// ever expose the generic message.
func respondError(c *fiber.Ctx, err error) error {
	e := domain.AsError(err)

	body := ErrorResponse{Message: e.Message}
	switch e.Kind {
	case domain.KindValidation, domain.KindAuthentication:
		body.InvalidArgs = e.InvalidArgs
	case domain.KindService:
		body.Message = domain.DefaultServiceMessage
	}

	return c.Status(e.Kind.Status()).JSON(body)
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Message: "Invalid request body",
	})
}
