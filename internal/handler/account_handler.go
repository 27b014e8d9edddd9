package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/deviceauth/internal/middleware"
	"github.com/mansoorceksport/deviceauth/internal/service"
)

// AccountHandler serves the authenticated account's own data
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// Me handles GET /v1/users/me
func (h *AccountHandler) Me(c *fiber.Ctx) error {
	accountID, _ := c.Locals(middleware.AccountIDKey).(string)

	account, err := h.accountService.Me(c.UserContext(), accountID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(account)
}

// Devices handles GET /v1/users/me/devices
func (h *AccountHandler) Devices(c *fiber.Ctx) error {
	accountID, _ := c.Locals(middleware.AccountIDKey).(string)

	devices, err := h.accountService.Devices(c.UserContext(), accountID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(devices)
}
