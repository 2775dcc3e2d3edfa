package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ctf-go-api/internal/middleware"
)

func TestRateLimitKeysByUser(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if user := c.Get("X-Test-User"); user == "alice" {
			c.Locals("user_id", uint(1))
		} else if user == "bob" {
			c.Locals("user_id", uint(2))
		}
		return c.Next()
	})
	app.Post("/submit", middleware.RateLimit("flag_submit", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		req.Header.Set("X-Test-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, send("alice"))
	require.Equal(t, fiber.StatusOK, send("alice"))
	require.Equal(t, fiber.StatusTooManyRequests, send("alice"))
	require.Equal(t, fiber.StatusOK, send("bob"))
}
