package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/flashsale/reservation-engine/pkg/jwt_service"
)

// SecurityHeaders adds security-related HTTP headers to responses
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Content-Security-Policy", "default-src 'self'")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")

		return c.Next()
	}
}

// UserIDLocal is the fiber.Locals key the Identity middleware stores the
// authenticated subject under.
const UserIDLocal = "user_id"

// Identity decodes an already-issued bearer token to learn who is making
// the request. It does not issue, refresh, or manage tokens — a separate
// authn collaborator owns that; this middleware only trusts and consumes
// the claim once the signature checks out.
func Identity(tokens jwt_service.TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := tokens.GetTokenFromBearerString(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication required",
			})
		}

		claims, err := tokens.ValidateToken(raw)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals(UserIDLocal, claims.UserID)
		return c.Next()
	}
}

// RateLimiter limits the number of requests per IP. Left as a placeholder:
// a real deployment would back this with the same Redis cluster as the
// Coordination Cache, but no SPEC_FULL component depends on it existing.
func RateLimiter(maxRequests int, windowMinutes int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Next()
	}
}
