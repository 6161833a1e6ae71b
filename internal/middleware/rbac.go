package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-roster-api/internal/utils"
)

// RequireRole ensures that the authenticated user possesses one of the allowed roles. AuthRoleStaff
// expands to admin and teacher.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		switch normalized {
		case "":
		case AuthRoleStaff:
			allowed["admin"] = struct{}{}
			allowed["teacher"] = struct{}{}
		default:
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role := normalizeRoleValue(c.Locals("user_role"))
		if _, ok := allowed[role]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return c.Next()
	}
}

// normalizeRoleValue reads a role local, which is a string or a models.Role.
func normalizeRoleValue(value interface{}) string {
	if value == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(value)))
}
