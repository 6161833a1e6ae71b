package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-roster-api/internal/models"
)

func roleApp(role interface{}, allowed ...string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_role", role)
		return c.Next()
	})
	app.Use(RequireRole(allowed...))
	app.Get("/classes", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRoleStaffAllowsAdminAndTeacher(t *testing.T) {
	for _, role := range []interface{}{"admin", "Teacher", models.RoleTeacher} {
		resp, err := roleApp(role, AuthRoleStaff).Test(httptest.NewRequest(http.MethodGet, "/classes", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "role %v", role)
	}
}

func TestRequireRoleRejectsUnauthorizedRoles(t *testing.T) {
	for _, role := range []interface{}{"student", nil} {
		resp, err := roleApp(role, AuthRoleStaff).Test(httptest.NewRequest(http.MethodGet, "/classes", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode, "role %v", role)
	}
}

func TestRequireRoleExactMatch(t *testing.T) {
	resp, err := roleApp("teacher", AuthRoleAdmin).Test(httptest.NewRequest(http.MethodGet, "/classes", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
