package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/domain"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// PermissionChecker is the authorization entry point the middleware defers to.
type PermissionChecker interface {
	Authorize(ctx context.Context, userID string, required ...string) error
}

// RequirePerms ensures the authenticated member holds every listed permission.
func RequirePerms(checker PermissionChecker, required ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if err := checker.Authorize(c.UserContext(), principal.UserID, required...); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireStaff ensures a staff principal is present.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// OnboardLookup reads a member's onboarding record.
type OnboardLookup interface {
	GetOnboard(ctx context.Context, userID string) (*domain.StaffOnboardRecord, error)
}

// RequireOnboarded blocks panel actions until the member has completed
// onboarding. Onboarding itself only runs through the bot.
func RequireOnboarded(users OnboardLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		rec, err := users.GetOnboard(c.UserContext(), principal.UserID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewPrecondition("finish staff onboarding before using the panel", nil)
			}
			return apperrors.MapError(err)
		}
		if rec.State != domain.OnboardComplete {
			return apperrors.NewPrecondition("finish staff onboarding before using the panel", map[string]any{"state": string(rec.State)})
		}
		return c.Next()
	}
}
