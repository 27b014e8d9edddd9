package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/deviceauth/internal/domain"
	"github.com/mansoorceksport/deviceauth/internal/service"
)

// Context keys for storing request identity
const (
	ClaimsKey    = "claims"
	AccountIDKey = "accountID"
	DeviceIDKey  = "deviceID"
	notPermitted = "Not permitted."
	bearerPrefix = "Bearer "
)

// Authenticate decodes an optional bearer access token. A missing or invalid
// token leaves the request anonymous; guards decide what that means.
func Authenticate(signer service.TokenSigner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" || !strings.HasPrefix(authHeader, bearerPrefix) {
			return c.Next()
		}

		claims, err := signer.Parse(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			return c.Next()
		}

		c.Locals(ClaimsKey, claims)
		c.Locals(AccountIDKey, claims.Account.ID)
		c.Locals(DeviceIDKey, claims.DeviceID)
		return c.Next()
	}
}

// RequireAuthenticated rejects anonymous requests
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if Claims(c) == nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": notPermitted,
			})
		}
		return c.Next()
	}
}

// RequireAnonymous rejects requests that already carry a valid access token
func RequireAnonymous() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if Claims(c) != nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": notPermitted,
			})
		}
		return c.Next()
	}
}

// Claims returns the decoded access token claims, or nil for anonymous requests
func Claims(c *fiber.Ctx) *domain.AccessClaims {
	claims, _ := c.Locals(ClaimsKey).(*domain.AccessClaims)
	return claims
}
