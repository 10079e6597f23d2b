package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"sheetrelay/gateway/utils"
)

// SecretHeaders are the headers checked, in order, for the shared secret.
var SecretHeaders = []string{"X-API-Secret", "X-Secret-Key"}

// SharedSecret guards routes with a static secret shared between the UI,
// the workflow engine and this service.
func SharedSecret(secret string, log *logrus.Logger) fiber.Handler {
	if secret == "" {
		log.Warn("SHARED_SECRET_KEY is not set; every protected route will answer 500")
	}
	return func(c *fiber.Ctx) error {
		if secret == "" {
			log.Error("SHARED_SECRET_KEY not configured")
			return utils.RespondWithError(c, fiber.StatusInternalServerError, "Server configuration error")
		}

		var provided string
		for _, h := range SecretHeaders {
			if v := c.Get(h); v != "" {
				provided = v
				break
			}
		}
		if provided == "" {
			return utils.RespondWithError(c, fiber.StatusUnauthorized, "Secret key required. Include it in header: X-API-Secret or X-Secret-Key")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return utils.RespondWithError(c, fiber.StatusUnauthorized, "Invalid secret key")
		}
		return c.Next()
	}
}
