package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"tournament-ledger/utils"
)

// GatewayAuthMiddleware validates the Bearer service token sent by the API
// gateway. Paths starting with one of publicPrefixes skip the check; they
// authenticate some other way (payment webhooks are signed) or are internal.
func GatewayAuthMiddleware(expectedToken string, publicPrefixes ...string) fiber.Handler {
	if expectedToken == "" {
		utils.Fatal("❌ GAME_SERVICE_TOKEN is not set, service cannot authenticate Gateway")
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, p := range publicPrefixes {
			if strings.HasPrefix(path, p) {
				return c.Next()
			}
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			utils.Warnf("🚫 [GATEWAY_AUTH] Missing Authorization header for %s", path)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "gateway authentication token missing",
			})
		}

		// "Bearer <token>" or the raw token
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			utils.Warnf("❌ [GATEWAY_AUTH] Invalid token for %s", path)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "invalid gateway authentication token",
			})
		}
		return c.Next()
	}
}
