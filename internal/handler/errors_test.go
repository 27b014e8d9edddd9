package handler

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/deviceauth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
		args    []string
	}{
		{
			name:    "validation",
			err:     domain.NewValidationError("Your passwords must match.", "password", "confirmPassword"),
			status:  400,
			message: "Your passwords must match.",
			args:    []string{"password", "confirmPassword"},
		},
		{
			name:    "authentication",
			err:     domain.NewAuthenticationError("We couldn't log you in with the provided credentials", "username", "password"),
			status:  400,
			message: "We couldn't log you in with the provided credentials",
			args:    []string{"username", "password"},
		},
		{
			name:    "forbidden",
			err:     domain.NewForbidden("Invalid token"),
			status:  403,
			message: "Invalid token",
		},
		{
			name:    "not found",
			err:     domain.NewNotFound("Device not found."),
			status:  404,
			message: "Device not found.",
		},
		{
			name:    "service error hides cause",
			err:     domain.NewServiceError(errors.New("dial tcp 10.0.0.5:27017: connection refused")),
			status:  500,
			message: domain.DefaultServiceMessage,
		},
		{
			name:    "plain error",
			err:     errors.New("boom"),
			status:  500,
			message: domain.DefaultServiceMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return respondError(c, tt.err)
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.message, body.Message)
			assert.Equal(t, tt.args, body.InvalidArgs)
		})
	}
}
