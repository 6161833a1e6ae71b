package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-roster-api/internal/utils"
)

// Role requirements accepted by AuthOptions.Role. AuthRoleStaff admits both admins and teachers.
const (
	AuthRoleAny     = "any"
	AuthRoleStaff   = "staff"
	AuthRoleAdmin   = "admin"
	AuthRoleStudent = "student"
)

// AuthOptions configures WithAuth.
type AuthOptions struct {
	Role        string
	RequireUser bool
	// StudentParam names a route parameter holding a student id. Students may only reach their own id
	// through it; staff are not restricted.
	StudentParam string
}

// WithAuth guards a single handler using the locals set by JWTProtected.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	want := strings.ToLower(strings.TrimSpace(opts.Role))
	if want == "" {
		want = AuthRoleAny
	}
	needUser := opts.RequireUser || want != AuthRoleAny || opts.StudentParam != ""

	return func(c *fiber.Ctx) error {
		if status, message := authorize(c, want, needUser, opts.StudentParam); status != 0 {
			return utils.Fail(c, status, message, nil)
		}
		return handler(c)
	}
}

// authorize returns a zero status when the caller passes every guard.
func authorize(c *fiber.Ctx, want string, needUser bool, studentParam string) (int, string) {
	if userID, _ := c.Locals("user_id").(string); needUser && userID == "" {
		return fiber.StatusUnauthorized, "authentication required"
	}

	role := normalizeRoleValue(c.Locals("user_role"))
	staff := isStaffRole(role)

	if !roleSatisfies(want, role) {
		return fiber.StatusForbidden, "insufficient permissions"
	}

	if studentParam != "" && !staff {
		own, _ := c.Locals("student_id").(string)
		if own == "" || own != c.Params(studentParam) {
			return fiber.StatusForbidden, "students may only access their own record"
		}
	}
	return 0, ""
}

func roleSatisfies(want, role string) bool {
	switch want {
	case AuthRoleAny:
		return true
	case AuthRoleStaff:
		return isStaffRole(role)
	default:
		return role == want
	}
}

func isStaffRole(role string) bool {
	return role == "admin" || role == "teacher"
}
