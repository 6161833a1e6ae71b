package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-roster-api/internal/handler"
	"github.com/noah-isme/gema-roster-api/internal/middleware"
	"github.com/noah-isme/gema-roster-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AppName          string
	Health           handler.HealthInfo
	AuthHandler      *handler.AuthHandler
	SessionHandler   *handler.SessionHandler
	ClassHandler     *handler.ClassHandler
	StudentHandler   *handler.StudentHandler
	RecordHandler    *handler.RecordHandler
	ActivityHandler  *handler.ActivityHandler
	DashboardHandler *handler.DashboardHandler
	JWTMiddleware    fiber.Handler
	ResendLimiter    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, deps Dependencies) {
	observability.MountMetrics(app)

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", deps.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(deps.Health))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	resendLimiter := deps.ResendLimiter
	if resendLimiter == nil {
		resendLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}
	ownStudent := middleware.AuthOptions{Role: middleware.AuthRoleAny, StudentParam: "id"}

	auth := api.Group("/auth")
	if deps.AuthHandler != nil {
		auth.Post("/login", deps.AuthHandler.Login)
		auth.Post("/register", deps.AuthHandler.Register)
		auth.Post("/logout", deps.AuthHandler.Logout)
		auth.Post("/resend-code", resendLimiter, deps.AuthHandler.ResendCode)
		auth.Get("/me", jwtMiddleware, middleware.WithAuth(deps.AuthHandler.Me, middleware.AuthOptions{RequireUser: true}))
	}
	if deps.SessionHandler != nil {
		deps.SessionHandler.Register(auth.Group("/session"))
	}

	if deps.ClassHandler != nil {
		classes := api.Group("/classes", jwtMiddleware, middleware.RequireRole(middleware.AuthRoleStaff))
		deps.ClassHandler.Register(classes)
	}

	if deps.ActivityHandler != nil {
		activities := api.Group("/activities", jwtMiddleware, middleware.RequireRole(middleware.AuthRoleStaff))
		deps.ActivityHandler.Register(activities)
	}

	if deps.DashboardHandler != nil {
		dashboard := api.Group("/dashboard", jwtMiddleware, middleware.RequireRole(middleware.AuthRoleStaff))
		deps.DashboardHandler.Register(dashboard)
	}

	if deps.StudentHandler != nil {
		students := api.Group("/students", jwtMiddleware)
		h := deps.StudentHandler
		students.Get("", middleware.WithAuth(h.List, staff))
		students.Post("", middleware.WithAuth(h.Create, staff))
		students.Get("/:id", middleware.WithAuth(h.Get, ownStudent))
		students.Patch("/:id", middleware.WithAuth(h.Update, staff))
		students.Delete("/:id", middleware.WithAuth(h.Delete, staff))
		students.Post("/:id/verification-code", middleware.WithAuth(h.IssueCode, staff))
		students.Post("/:id/photo", middleware.WithAuth(h.UploadPhoto, staff))

		if deps.RecordHandler != nil {
			r := deps.RecordHandler
			students.Get("/:id/records/:kind", middleware.WithAuth(r.List, ownStudent))
			students.Post("/:id/records/:kind", middleware.WithAuth(r.Create, staff))
			students.Delete("/:id/records/:kind/:recordId", middleware.WithAuth(r.Delete, staff))
		}
	}
}

// RegisterRelay wires the mail relay routes.
func RegisterRelay(app *fiber.App, relay *handler.RelayHandler) {
	observability.MountMetrics(app)
	relay.Register(app)
}
