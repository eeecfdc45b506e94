package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/botlist/arcadia/internal/api/http/handlers"
	"github.com/botlist/arcadia/internal/auth"
	"github.com/botlist/arcadia/internal/perms"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Queue          *handlers.QueueHandler
	RPC            *handlers.RPCHandler
	Onboarding     *handlers.OnboardingHandler
	Staff          *handlers.StaffHandler
	AuthMiddleware *auth.AuthMiddleware
	Permissions    auth.PermissionChecker
	Onboard        auth.OnboardLookup
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/panel/login", cfg.Auth.Login)
	authGroup.Post("/panel/token", cfg.AuthMiddleware.Handle, auth.RequireStaff(), cfg.Auth.RotateToken)

	app.Post("/onboarding/code", cfg.Onboarding.VerificationCode)

	onboarded := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireStaff(), auth.RequireOnboarded(cfg.Onboard)}
	requirePerms := func(keys ...string) fiber.Handler { return auth.RequirePerms(cfg.Permissions, keys...) }

	queue := app.Group("/queue", onboarded...)
	queue.Get("/", cfg.Queue.List)
	queue.Post("/:bot_id/claim", cfg.Queue.Claim)
	queue.Post("/:bot_id/unclaim", cfg.Queue.Unclaim)
	queue.Post("/:bot_id/approve", cfg.Queue.Approve)
	queue.Post("/:bot_id/deny", cfg.Queue.Deny)

	rpc := app.Group("/rpc", onboarded...)
	rpc.Get("/methods", cfg.RPC.ListMethods)
	rpc.Post("/:method", cfg.RPC.Invoke)

	staff := app.Group("/staff", onboarded...)
	staff.Get("/onboarding/pending", cfg.Onboarding.Pending)
	staff.Post("/onboarding/:user_id/approve", cfg.Onboarding.Approve)
	staff.Post("/onboarding/:user_id/deny", cfg.Onboarding.Deny)
	staff.Post("/onboarding/:user_id/reset", cfg.Onboarding.Reset)

	staff.Get("/positions", cfg.Staff.ListPositions)
	staff.Post("/positions", cfg.Staff.CreatePosition)
	staff.Patch("/positions/:id", cfg.Staff.EditPosition)
	staff.Delete("/positions/:id", cfg.Staff.DeletePosition)

	staff.Get("/members", cfg.Staff.ListMembers)
	staff.Patch("/members/:user_id", cfg.Staff.EditMember)

	staff.Get("/disciplinary-types", cfg.Staff.ListDisciplinaryTypes)
	staff.Post("/disciplinary-types", cfg.Staff.CreateDisciplinaryType)
	staff.Put("/disciplinary-types/:id", cfg.Staff.EditDisciplinaryType)

	staff.Get("/disciplinaries/me", cfg.Staff.MyDisciplinaries)
	staff.Get("/disciplinaries/:user_id", requirePerms(perms.StaffDisciplinaryIssue), cfg.Staff.ListDisciplinaries)
	staff.Post("/disciplinaries", cfg.Staff.IssueDisciplinary)
	staff.Post("/disciplinaries/:id/approve", cfg.Staff.ApproveDisciplinary)
	staff.Post("/disciplinaries/:id/revoke", cfg.Staff.RevokeDisciplinary)
}
