package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/deviceauth/internal/config"
	"github.com/mansoorceksport/deviceauth/internal/domain"
	"github.com/mansoorceksport/deviceauth/internal/middleware"
	"github.com/mansoorceksport/deviceauth/internal/service"
	"github.com/mansoorceksport/deviceauth/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	cookies     config.CookieConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, cookies config.CookieConfig) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookies:     cookies,
	}
}

// DeviceRequest describes the calling device in a request body
type DeviceRequest struct {
	Identifier string `json:"identifier"`
	Platform   string `json:"platform"`
}

// RegisterRequest is the body of POST /v1/auth/register
type RegisterRequest struct {
	User   service.RegisterInput `json:"user"`
	Device DeviceRequest         `json:"device"`
}

// LoginRequest is the body of POST /v1/auth/login
type LoginRequest struct {
	Username string        `json:"username"`
	Password string        `json:"password"`
	Device   DeviceRequest `json:"device"`
}

// RefreshRequest is the body of POST /v1/auth/refresh. Both fields are
// optional; the refresh cookie and client info fill the gaps.
type RefreshRequest struct {
	RefreshToken string        `json:"refreshToken"`
	Device       DeviceRequest `json:"device"`
}

// LogoutRequest is the body of POST /v1/auth/logout
type LogoutRequest struct {
	Device DeviceRequest `json:"device"`
}

// Register handles POST /v1/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	result, err := h.authService.Register(c.UserContext(), req.User, h.client(c, req.Device))
	if err != nil {
		return respondError(c, err)
	}

	telemetry.TagClient(c, result.ClientID)
	h.setCredentialCookies(c, result.RefreshToken, result.RefreshExpiresAt, result.ClientID)
	return c.Status(fiber.StatusCreated).JSON(result)
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	result, err := h.authService.Login(c.UserContext(), service.LoginInput{
		Username: req.Username,
		Password: req.Password,
	}, h.client(c, req.Device))
	if err != nil {
		return respondError(c, err)
	}

	telemetry.TagClient(c, result.ClientID)
	h.setCredentialCookies(c, result.RefreshToken, result.RefreshExpiresAt, result.ClientID)
	return c.JSON(result)
}

// Refresh handles POST /v1/auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
	}

	token := req.RefreshToken
	if token == "" {
		token = c.Cookies(h.cookies.RefreshName)
	}
	client := h.client(c, req.Device)

	result, err := h.authService.Refresh(c.UserContext(), service.RefreshInput{
		Identifier: client.Identifier,
		Token:      token,
		Address:    client.Address,
		Agent:      client.Agent,
	})
	if err != nil {
		if domain.AsError(err).Kind == domain.KindForbidden {
			h.clearCookie(c, h.cookies.RefreshName)
		}
		return respondError(c, err)
	}

	telemetry.TagClient(c, result.ClientID)
	h.setCredentialCookies(c, result.RefreshToken, result.RefreshExpiresAt, result.ClientID)
	return c.JSON(result)
}

// Logout handles POST /v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req LogoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
	}

	in := service.LogoutInput{Identifier: h.client(c, req.Device).Identifier}
	in.AccountID, _ = c.Locals(middleware.AccountIDKey).(string)
	in.BoundDevice, _ = c.Locals(middleware.DeviceIDKey).(string)

	message, err := h.authService.Logout(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}

	telemetry.SessionEvent(c, "session.revoked",
		attribute.String("auth.client_id", in.Identifier),
		attribute.String("auth.bound_device", in.BoundDevice),
	)

	h.clearCookie(c, h.cookies.RefreshName)
	return c.JSON(fiber.Map{
		"message": message,
	})
}

// client merges the body's device description over the request's client info
func (h *AuthHandler) client(c *fiber.Ctx, device DeviceRequest) service.ClientInfo {
	info := middleware.Client(c)
	if device.Identifier != "" {
		info.Identifier = device.Identifier
	}
	info.Platform = device.Platform
	return info
}

func (h *AuthHandler) setCredentialCookies(c *fiber.Ctx, refreshToken string, expires time.Time, clientID string) {
	c.Cookie(&fiber.Cookie{
		Name:     h.cookies.RefreshName,
		Value:    refreshToken,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cookies.HTTPSOnly,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
	c.Cookie(&fiber.Cookie{
		Name:     h.cookies.ClientName,
		Value:    clientID,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cookies.HTTPSOnly,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}

func (h *AuthHandler) clearCookie(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-1 * time.Hour),
		HTTPOnly: true,
		Secure:   h.cookies.HTTPSOnly,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}
