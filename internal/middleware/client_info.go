package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/deviceauth/internal/service"
)

const clientInfoKey = "clientInfo"

// ClientInfo records where the request comes from. The device identifier is
// read from the query parameter, then the cookie, both named cookieName;
// handlers may override it from the request body.
func ClientInfo(cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.Query(cookieName)
		if identifier == "" {
			identifier = c.Cookies(cookieName)
		}

		c.Locals(clientInfoKey, service.ClientInfo{
			Identifier: identifier,
			Address:    clientAddress(c),
			Agent:      c.Get(fiber.HeaderUserAgent),
		})
		return c.Next()
	}
}

// Client returns the client info recorded by ClientInfo
func Client(c *fiber.Ctx) service.ClientInfo {
	info, _ := c.Locals(clientInfoKey).(service.ClientInfo)
	return info
}

// clientAddress prefers the first hop of X-Forwarded-For, then the "for"
// pair of a Forwarded header, then the socket address
func clientAddress(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr := strings.TrimSpace(first); addr != "" {
			return addr
		}
	}

	if fwd := c.Get("Forwarded"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		for _, pair := range strings.Split(first, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && strings.EqualFold(key, "for") {
				return strings.Trim(value, `"`)
			}
		}
	}

	return c.IP()
}
