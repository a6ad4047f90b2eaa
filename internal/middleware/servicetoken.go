package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ServiceToken guards service-to-service endpoints with a shared bearer
// token. The comparison is constant time. An empty configured token locks
// the endpoints entirely rather than leaving them open.
func ServiceToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return fiber.NewError(http.StatusServiceUnavailable, "service endpoints disabled")
		}
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		presented := strings.TrimSpace(authz[len("Bearer "):])
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		return c.Next()
	}
}
