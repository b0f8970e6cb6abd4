package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	userService "tickethub_backend/internals/features/users/service"
	helper "tickethub_backend/internals/helpers"
)

// AuthJWT validates the bearer token AND the session's envelope key in one
// step. A token whose session key cannot be unwrapped (rotation, tamper) is a
// dead session: the key service drops it and the request gets 401, so no
// request ever proceeds "authenticated" but unable to decrypt.
func AuthJWT(secret string, keys *userService.KeyService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			return helper.JsonError(c, fiber.StatusUnauthorized, "Missing bearer token")
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return helper.JsonError(c, fiber.StatusUnauthorized, "Invalid or expired token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return helper.JsonError(c, fiber.StatusUnauthorized, "Invalid token claims")
		}
		userID, _ := claims["sub"].(string)
		tokenID, _ := claims["jti"].(string)
		if userID == "" || tokenID == "" {
			return helper.JsonError(c, fiber.StatusUnauthorized, "Invalid token claims")
		}

		dataKey, sessionUserID, err := keys.SessionKey(c.UserContext(), tokenID)
		if err != nil {
			if errors.Is(err, userService.ErrSessionInvalid) {
				return helper.JsonError(c, fiber.StatusUnauthorized, "Session expired, please log in again")
			}
			return helper.JsonError(c, fiber.StatusInternalServerError, "Authentication failed")
		}
		if sessionUserID.String() != userID {
			return helper.JsonError(c, fiber.StatusUnauthorized, "Token does not match session")
		}

		c.Locals("user_id", userID)
		c.Locals("token_id", tokenID)
		c.Locals("data_key", dataKey)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	h := c.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
