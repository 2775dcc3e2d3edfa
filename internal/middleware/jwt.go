package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/ctf-go-api/internal/utils"
)

// JWTProtected validates HS256 bearer tokens and exposes user_id, team_id and user_role as locals.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired())

	return func(c *fiber.Ctx) error {
		authorization := c.Get(fiber.HeaderAuthorization)
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return utils.SendError(c, fiber.StatusUnauthorized, "token expired")
			}
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		userID, err := claimUint(claims, "user_id", "sub")
		if err != nil || userID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		c.Locals("user_id", userID)
		if teamID, err := claimUint(claims, "team_id"); err == nil && teamID != 0 {
			c.Locals("team_id", teamID)
		}
		if role, ok := claims["role"].(string); ok {
			c.Locals("user_role", strings.ToLower(strings.TrimSpace(role)))
		}

		return c.Next()
	}
}

func claimUint(claims jwt.MapClaims, keys ...string) (uint, error) {
	for _, key := range keys {
		value, ok := claims[key]
		if !ok {
			continue
		}

		switch v := value.(type) {
		case float64:
			if v < 0 {
				return 0, fmt.Errorf("negative %s claim", key)
			}
			return uint(v), nil
		case string:
			parsed, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return 0, err
			}
			return uint(parsed), nil
		default:
			return 0, fmt.Errorf("unsupported %s claim type %T", key, value)
		}
	}

	return 0, fmt.Errorf("claim %v missing", keys)
}
