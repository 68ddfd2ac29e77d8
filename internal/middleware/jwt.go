package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/utils"
)

// SessionCookie is the cookie carrying the session token for browser clients.
const SessionCookie = "session"

// Locals keys populated by JWTProtected.
const (
	LocalUserID      = "user_id"
	LocalUserRole    = "user_role"
	LocalUsername    = "username"
	LocalDisplayName = "display_name"
)

// JWTProtected returns a middleware that validates session tokens issued by the auth provider.
// The token is read from the Authorization bearer header, falling back to the session cookie.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := sessionToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		userID := extractUserIDFromClaims(claims)
		if userID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserRole, string(extractUserRoleFromClaims(claims)))
		c.Locals(LocalUsername, firstStringClaim(claims, "username", "preferred_username"))
		c.Locals(LocalDisplayName, firstStringClaim(claims, "name", "display_name"))

		return c.Next()
	}
}

func sessionToken(c *fiber.Ctx) (string, error) {
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authorization == "" {
		if cookie := strings.TrimSpace(c.Cookies(SessionCookie)); cookie != "" {
			return cookie, nil
		}
		return "", fmt.Errorf("authorization header missing")
	}

	token, ok := BearerToken(authorization)
	if !ok {
		return "", fmt.Errorf("invalid authorization header")
	}
	return token, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header value.
func BearerToken(authorization string) (string, bool) {
	const bearer = "bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(authorization[len(bearer):])
	return token, token != ""
}

func extractUserIDFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "user_id", "id"} {
		if value, ok := claims[key]; ok {
			if normalized := normalizeUserID(value); normalized != "" {
				return normalized
			}
		}
	}
	return ""
}

func normalizeUserID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return ""
		}
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func extractUserRoleFromClaims(claims jwt.MapClaims) models.Role {
	for _, key := range []string{"role", "roles"} {
		switch v := claims[key].(type) {
		case string:
			return models.ParseRole(v)
		case []interface{}:
			for _, item := range v {
				if str, ok := item.(string); ok && models.ParseRole(str) == models.RoleAdmin {
					return models.RoleAdmin
				}
			}
		}
	}
	return models.RoleUser
}

func firstStringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
