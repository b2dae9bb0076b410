package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmkhan10/RouteBase/internal/core/security"
)

// Protected guards the admin surface with a bearer API key. Only key hashes
// are stored; the raw key is hashed and looked up per request.
func Protected(db *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization") // "Bearer rb_live_..."
		if authHeader == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Missing API Key"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid Header Format"})
		}
		apiKey := parts[1]

		hashedKey := security.HashKey(apiKey)

		var sellerID string
		err := db.QueryRow(c.Context(), "SELECT seller_id FROM api_keys WHERE key_hash = $1", hashedKey).Scan(&sellerID)
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid API Key"})
		}

		c.Locals("seller_id", sellerID)

		return c.Next()
	}
}
